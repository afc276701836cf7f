package core

import "testing"

func resetScheduler() {
	timerList = nil
	currentTime = 0
	SetTime(0)
}

func TestTimerDispatchOrder(t *testing.T) {
	resetScheduler()

	var fired []int
	mkTimer := func(id int, wake uint32) *Timer {
		return &Timer{
			WakeTime: wake,
			Handler: func(*Timer) uint8 {
				fired = append(fired, id)
				return SF_DONE
			},
		}
	}

	// Insert out of order; dispatch must run by WakeTime.
	ScheduleTimer(mkTimer(3, 300))
	ScheduleTimer(mkTimer(1, 100))
	ScheduleTimer(mkTimer(2, 200))

	SetTime(150)
	ProcessTimers()
	if len(fired) != 1 || fired[0] != 1 {
		t.Fatalf("expected only timer 1 at t=150, got %v", fired)
	}

	SetTime(300)
	ProcessTimers()
	if len(fired) != 3 || fired[1] != 2 || fired[2] != 3 {
		t.Fatalf("expected timers 2,3 by t=300, got %v", fired)
	}
	if timerList != nil {
		t.Error("timer list should be empty after all timers fire")
	}
}

func TestTimerReschedule(t *testing.T) {
	resetScheduler()

	count := 0
	periodic := &Timer{WakeTime: 100}
	periodic.Handler = func(tm *Timer) uint8 {
		count++
		if count >= 3 {
			return SF_DONE
		}
		tm.WakeTime += 100
		return SF_RESCHEDULE
	}
	ScheduleTimer(periodic)

	for tick := uint32(100); tick <= 500; tick += 100 {
		SetTime(tick)
		ProcessTimers()
	}

	if count != 3 {
		t.Errorf("periodic timer fired %d times, want 3", count)
	}
	if timerList != nil {
		t.Error("timer list should be empty after SF_DONE")
	}
}

func TestTimerCancel(t *testing.T) {
	resetScheduler()

	fired := false
	victim := &Timer{
		WakeTime: 100,
		Handler:  func(*Timer) uint8 { fired = true; return SF_DONE },
	}
	survivor := &Timer{
		WakeTime: 200,
		Handler:  func(*Timer) uint8 { return SF_DONE },
	}

	ScheduleTimer(victim)
	ScheduleTimer(survivor)
	CancelTimer(victim)

	SetTime(300)
	ProcessTimers()

	if fired {
		t.Error("cancelled timer fired")
	}
	if timerList != nil {
		t.Error("surviving timer did not fire")
	}
}

func TestTimerCancelMiddleOfList(t *testing.T) {
	resetScheduler()

	var fired []int
	mkTimer := func(id int, wake uint32) *Timer {
		return &Timer{
			WakeTime: wake,
			Handler: func(*Timer) uint8 {
				fired = append(fired, id)
				return SF_DONE
			},
		}
	}

	t1 := mkTimer(1, 100)
	t2 := mkTimer(2, 200)
	t3 := mkTimer(3, 300)
	ScheduleTimer(t1)
	ScheduleTimer(t2)
	ScheduleTimer(t3)
	CancelTimer(t2)

	SetTime(400)
	ProcessTimers()

	if len(fired) != 2 || fired[0] != 1 || fired[1] != 3 {
		t.Errorf("expected timers 1,3 after cancelling 2, got %v", fired)
	}
}

func TestTimerCancelNotScheduled(t *testing.T) {
	resetScheduler()

	// Cancelling a timer that was never scheduled must not corrupt the list.
	stray := &Timer{WakeTime: 100, Handler: func(*Timer) uint8 { return SF_DONE }}
	CancelTimer(stray)

	fired := false
	ScheduleTimer(&Timer{
		WakeTime: 50,
		Handler:  func(*Timer) uint8 { fired = true; return SF_DONE },
	})
	CancelTimer(stray)

	SetTime(100)
	ProcessTimers()
	if !fired {
		t.Error("scheduled timer did not fire")
	}
}
