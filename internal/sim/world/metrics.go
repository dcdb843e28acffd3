package world

import (
	"encoding/json"

	"gladekeep.gg/internal/protocol"
)

// WorldMetrics is a thread-safe read-only view of the streaming manager.
// It is updated from the world loop goroutine and read from HTTP
// handlers/tests.
type WorldMetrics struct {
	Tick uint64 `json:"tick"`

	Observer      [2]float64 `json:"observer"`
	ObserverChunk [2]int     `json:"observer_chunk"`

	Counts    StateCounts     `json:"counts"`
	Streaming StreamingConfig `json:"streaming"`

	LastStep protocol.StepCounts `json:"last_step"`
	Totals   protocol.StepCounts `json:"totals"`

	Sessions int `json:"sessions"`

	QueueDepths QueueDepths `json:"queue_depths"`

	StepMS float64 `json:"step_ms"`
}

type QueueDepths struct {
	Join  int `json:"join"`
	Leave int `json:"leave"`
	Move  int `json:"move"`
	Tune  int `json:"tune"`
}

// Metrics returns the last published snapshot. Safe from any goroutine.
func (w *World) Metrics() WorldMetrics {
	if w == nil {
		return WorldMetrics{}
	}
	v := w.metrics.Load()
	if v == nil {
		return WorldMetrics{}
	}
	m, ok := v.(WorldMetrics)
	if !ok {
		return WorldMetrics{}
	}
	return m
}

func (w *World) publishMetrics(rep StepReport, stepMS float64) {
	m := WorldMetrics{
		Tick:          rep.Frame,
		Observer:      [2]float64{w.observer.X, w.observer.Z},
		ObserverChunk: [2]int{rep.ObserverChunk.X, rep.ObserverChunk.Z},
		Counts:        w.reg.Counts(),
		Streaming:     w.streaming,
		LastStep:      stepCounts(rep),
		Totals:        w.totals,
		Sessions:      len(w.sessions),
		QueueDepths: QueueDepths{
			Join:  len(w.join),
			Leave: len(w.leave),
			Move:  len(w.move),
			Tune:  len(w.tune),
		},
		StepMS: stepMS,
	}
	w.metrics.Store(m)
}

func (w *World) stateMessage(rep StepReport, stepMS float64) []byte {
	counts := w.reg.Counts()
	msg := protocol.StateMsg{
		Type:            protocol.TypeState,
		ProtocolVersion: protocol.Version,
		Tick:            rep.Frame,
		Observer:        [2]float64{w.observer.X, w.observer.Z},
		ObserverChunk:   [2]int{rep.ObserverChunk.X, rep.ObserverChunk.Z},
		Counts: protocol.ChunkCounts{
			Pending:       counts.Pending,
			Resident:      counts.Resident,
			PendingUnload: counts.PendingUnload,
		},
		Streaming: streamingParams(w.streaming),
		LastStep:  stepCounts(rep),
		Totals:    w.totals,
		StepMS:    stepMS,
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return nil
	}
	return b
}

func stepCounts(rep StepReport) protocol.StepCounts {
	return protocol.StepCounts{
		Loads:           rep.Loads,
		Unloads:         rep.Unloads,
		Cancels:         rep.Cancels,
		LoadFailures:    rep.LoadFailures,
		UnloadFailures:  rep.UnloadFailures,
		DeferredLoads:   rep.DeferredLoads,
		DeferredUnloads: rep.DeferredUnloads,
	}
}
