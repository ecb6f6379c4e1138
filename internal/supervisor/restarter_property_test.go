/*
 * Licensed to the Apache Software Foundation (ASF) under one or more
 * contributor license agreements.  See the NOTICE file distributed with
 * this work for additional information regarding copyright ownership.
 * The ASF licenses this file to You under the Apache License, Version 2.0
 * (the "License"); you may not use this file except in compliance with
 * the License.  You may obtain a copy of the License at
 *
 *    http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package supervisor

import (
	"testing"
	"time"

	"pgregory.net/rapid"
)

// For any process, the restart count within the configured time window must
// not exceed the maximum. Once the budget is exhausted, further restarts are
// denied and the process enters cooldown.
// 对于任何进程，在配置的时间窗口内重启次数不得超过最大值。
// 预算耗尽后，进一步的重启被拒绝，进程进入冷却。
func TestProperty_RestartBudget(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		// Generate random policy / 生成随机策略
		maxRestarts := rapid.IntRange(1, 5).Draw(t, "maxRestarts")
		timeWindow := time.Duration(rapid.IntRange(60, 300).Draw(t, "timeWindow")) * time.Second

		r := NewRestarter(NewManager(nil))
		r.SetPolicy(&RestartPolicy{
			Enabled:     true,
			Delay:       1 * time.Second,
			MaxRestarts: maxRestarts,
			TimeWindow:  timeWindow,
			Cooldown:    30 * time.Minute,
		})

		// Generate random process name / 生成随机进程名
		name := rapid.StringMatching(`app-[a-z0-9]+`).Draw(t, "name")

		// Consume the budget / 消耗预算
		for i := 0; i < maxRestarts; i++ {
			if !r.ShouldRestart(name) {
				t.Errorf("restart %d should be allowed (max: %d)", i+1, maxRestarts)
			}
			r.recordRestart(name)
		}

		// Next restart must be denied / 下一次重启必须被拒绝
		if r.ShouldRestart(name) {
			t.Errorf("restart should be denied after reaching max (%d)", maxRestarts)
		}

		// Must be in cooldown / 必须处于冷却中
		if !r.IsInCooldown(name) {
			t.Error("process should be in cooldown after exhausting the budget")
		}
	})
}

// For any process, resetting the restart count after a cooldown clears the
// restart history and allows restarts again.
// 对于任何进程，冷却后重置重启计数会清空重启历史并再次允许重启。
func TestProperty_CooldownReset(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		name := rapid.StringMatching(`app-[a-z0-9]+`).Draw(t, "name")
		maxRestarts := rapid.IntRange(1, 5).Draw(t, "maxRestarts")

		r := NewRestarter(NewManager(nil))
		r.SetPolicy(&RestartPolicy{
			Enabled:     true,
			Delay:       1 * time.Second,
			MaxRestarts: maxRestarts,
			TimeWindow:  5 * time.Minute,
			Cooldown:    1 * time.Millisecond,
		})

		for i := 0; i < maxRestarts; i++ {
			r.recordRestart(name)
		}
		r.ShouldRestart(name) // enters cooldown / 进入冷却

		time.Sleep(10 * time.Millisecond)
		r.ResetRestartCount(name)

		if !r.ShouldRestart(name) {
			t.Error("restart should be allowed after cooldown reset")
		}

		history := r.GetRestartHistory(name)
		if history != nil && len(history.RestartTimes) > 0 {
			t.Error("restart times should be empty after reset")
		}
	})
}

// Restart histories of different processes are independent: exhausting one
// process's budget never affects another.
// 不同进程的重启历史相互独立：耗尽一个进程的预算不会影响另一个。
func TestProperty_HistoryIsolation(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		nameA := rapid.StringMatching(`app-a-[a-z0-9]+`).Draw(t, "nameA")
		nameB := rapid.StringMatching(`app-b-[a-z0-9]+`).Draw(t, "nameB")
		maxRestarts := rapid.IntRange(1, 5).Draw(t, "maxRestarts")

		r := NewRestarter(NewManager(nil))
		r.SetPolicy(&RestartPolicy{
			Enabled:     true,
			Delay:       1 * time.Second,
			MaxRestarts: maxRestarts,
			TimeWindow:  5 * time.Minute,
			Cooldown:    30 * time.Minute,
		})

		for i := 0; i < maxRestarts; i++ {
			r.recordRestart(nameA)
		}

		if r.ShouldRestart(nameA) {
			t.Errorf("process %q should have exhausted its budget", nameA)
		}
		if !r.ShouldRestart(nameB) {
			t.Errorf("process %q should be unaffected by %q", nameB, nameA)
		}
	})
}
