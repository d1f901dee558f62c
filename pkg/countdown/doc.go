// Package countdown implements keyed countdown timers.
//
// Each timer is addressed by a caller-supplied id and moves between four
// states:
//
//	idle ──Start──▶ running ──Pause──▶ paused
//	  ▲               │   ▲──Resume────┘
//	  │               │ tick reaches 0
//	  │               ▼
//	  └─Reset/Dismiss─ expired ──Snooze──▶ running
//
// Idle is represented by the absence of a record. Reset and Dismiss return
// any state to idle. Start and Snooze work from every state and replace any
// running tick process for the id.
//
// # Ticking
//
// A running timer owns exactly one tick process registered with the
// Scheduler. Each tick decrements the remaining seconds by one regardless
// of how much wall-clock time passed; EndTime is informational only. Every
// transition that changes status cancels the existing tick process before
// registering a new one, so at most one ticker exists per id.
//
// # Expiry
//
// When the remaining seconds reach zero the timer becomes expired and its
// expiry callback is taken from the record before it is invoked. The
// callback therefore fires at most once per countdown. Snooze re-arms the
// timer with the stored callback.
//
// # Notifications
//
// Every transition triggers a payload-less broadcast on the configured
// notify.Broadcaster. Callbacks and broadcasts run outside the manager
// lock, so they may call back into the Manager.
package countdown
