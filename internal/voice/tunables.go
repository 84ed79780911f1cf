package voice

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"
)

// Tunables are the pipeline knobs that may change while a call is live.
type Tunables struct {
	SilenceClose   time.Duration `json:"-"`
	MergeGap       float64       `json:"merge_gap_sec"`
	MaxMerge       float64       `json:"max_merge_sec"`
	SingleSpeaker  bool          `json:"single_speaker"`
	HysteresisSpan float64       `json:"hysteresis_span_sec"`
}

// tunablesJSON carries SilenceClose in seconds, the unit PATCH /config takes.
type tunablesJSON struct {
	SilenceCloseSec float64 `json:"silence_close_sec"`
	plainTunables
}

type plainTunables Tunables

func (t Tunables) MarshalJSON() ([]byte, error) {
	return json.Marshal(tunablesJSON{SilenceCloseSec: t.SilenceClose.Seconds(), plainTunables: plainTunables(t)})
}

func (t *Tunables) UnmarshalJSON(b []byte) error {
	var v tunablesJSON
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*t = Tunables(v.plainTunables)
	t.SilenceClose = time.Duration(v.SilenceCloseSec * float64(time.Second))
	return nil
}

// DefaultTunables mirror the config defaults.
func DefaultTunables() Tunables {
	return Tunables{
		SilenceClose:   1500 * time.Millisecond,
		MergeGap:       0.5,
		HysteresisSpan: 2.0,
	}
}

// Validate rejects values the pipeline cannot run with.
func (t Tunables) Validate() error {
	if t.SilenceClose <= 0 {
		return fmt.Errorf("silence close must be positive, got %s", t.SilenceClose)
	}
	if t.MergeGap <= 0 {
		return fmt.Errorf("merge gap must be positive, got %v", t.MergeGap)
	}
	if t.MaxMerge < 0 {
		return fmt.Errorf("max merge must be >= 0, got %v", t.MaxMerge)
	}
	if t.HysteresisSpan < 0 {
		return fmt.Errorf("hysteresis span must be >= 0, got %v", t.HysteresisSpan)
	}
	return nil
}

// TunableStore publishes Tunables to the pipeline goroutines.
type TunableStore struct {
	v atomic.Pointer[Tunables]
}

func NewTunableStore(t Tunables) *TunableStore {
	s := &TunableStore{}
	s.v.Store(&t)
	return s
}

func (s *TunableStore) Load() Tunables {
	if s == nil {
		return DefaultTunables()
	}
	if p := s.v.Load(); p != nil {
		return *p
	}
	return DefaultTunables()
}

// Store validates and swaps in new values.
func (s *TunableStore) Store(t Tunables) error {
	if err := t.Validate(); err != nil {
		return err
	}
	s.v.Store(&t)
	return nil
}
