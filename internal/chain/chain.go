// Package chain groups reasoning events with the actions that followed
// them, preserving recorded order. Building chains is a pure function of
// the event sequence: no I/O, no hidden state.
package chain

import (
	"time"

	"github.com/tracelab-ai/tracelab/pkg/types"
)

// Chain pairs one reasoning event with the command/edit events observed
// between it and the next reasoning event. TimeGap is the delta between the
// reasoning event and its first following action, zero when there is none.
type Chain struct {
	Reasoning        types.Event
	FollowingActions []types.Event
	TimeGap          time.Duration
}

// Build derives chains from an ordered event sequence. Every reasoning
// event yields exactly one chain, including reasoning with no observed
// follow-through (empty action list, zero gap). Actions are assigned to the
// most recent preceding reasoning event; identical timestamps keep the
// original recorded order, so an action sharing a timestamp with the
// reasoning that precedes it still belongs to that reasoning's chain.
//
// Actions recorded before the first reasoning event have no chain to join.
// They are returned as the preamble so the chains plus the preamble always
// partition the non-reasoning events: no action is dropped.
func Build(events []types.Event) ([]Chain, []types.Event) {
	var (
		chains   []Chain
		preamble []types.Event
	)

	for _, ev := range events {
		switch ev.Type {
		case types.EventReasoning:
			chains = append(chains, Chain{Reasoning: ev})
		case types.EventCommand, types.EventEdit:
			if len(chains) == 0 {
				preamble = append(preamble, ev)
				continue
			}
			current := &chains[len(chains)-1]
			if len(current.FollowingActions) == 0 {
				current.TimeGap = gap(current.Reasoning, ev)
			}
			current.FollowingActions = append(current.FollowingActions, ev)
		}
	}

	return chains, preamble
}

// ActionCount returns the total number of actions across all chains.
func ActionCount(chains []Chain) int {
	n := 0
	for i := range chains {
		n += len(chains[i].FollowingActions)
	}
	return n
}

// gap computes the timestamp delta between a reasoning event and an action.
// Unparseable timestamps and clock regressions both collapse to zero.
func gap(reasoning, action types.Event) time.Duration {
	rt, at := reasoning.Time(), action.Time()
	if rt.IsZero() || at.IsZero() || at.Before(rt) {
		return 0
	}
	return at.Sub(rt)
}
