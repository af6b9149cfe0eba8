package order

import (
	"fmt"

	apperrors "acme-dns-manager/internal/errors"
)

// State 订单处理阶段
type State int

const (
	StateInit State = iota
	StateCsrLoaded
	StateOrderSubmitted
	StateChallengesPublished
	StateValidating
	StateFinalizing
	StatePolling
	StateIssued
	StateFailed
)

var stateNames = map[State]string{
	StateInit:                "init",
	StateCsrLoaded:           "csr_loaded",
	StateOrderSubmitted:      "order_submitted",
	StateChallengesPublished: "challenges_published",
	StateValidating:          "validating",
	StateFinalizing:          "finalizing",
	StatePolling:             "polling",
	StateIssued:              "issued",
	StateFailed:              "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal 是否为终止状态
func (s State) Terminal() bool {
	return s == StateIssued || s == StateFailed
}

// 每个状态允许进入的下一状态，Failed 单独处理
var transitions = map[State]State{
	StateInit:                StateCsrLoaded,
	StateCsrLoaded:           StateOrderSubmitted,
	StateOrderSubmitted:      StateChallengesPublished,
	StateChallengesPublished: StateValidating,
	StateValidating:          StateFinalizing,
	StateFinalizing:          StatePolling,
	StatePolling:             StateIssued,
}

// CanTransition 检查 from 能否进入 to
func CanTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}
	if to == StateFailed {
		return true
	}
	next, ok := transitions[from]
	return ok && next == to
}

func transition(from, to State) error {
	if !CanTransition(from, to) {
		return apperrors.Protocol("切换订单状态", fmt.Errorf("%w: %s -> %s", apperrors.ErrInvalidTransition, from, to))
	}
	return nil
}
