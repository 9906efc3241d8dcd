package overlay

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/csm-companion/internal/errors"
	"github.com/hpungsan/csm-companion/internal/logging"
	"github.com/hpungsan/csm-companion/internal/pulse"
)

type stubSource struct {
	lookups map[string]pulse.Lookup
	calls   atomic.Int32

	// inFlight detects overlapping calls
	inFlight atomic.Int32
	overlap  atomic.Bool
	delay    time.Duration
}

func (s *stubSource) GetPulse(ctx context.Context, caseID string) pulse.Lookup {
	s.calls.Add(1)
	if s.inFlight.Add(1) > 1 {
		s.overlap.Store(true)
	}
	defer s.inFlight.Add(-1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if l, ok := s.lookups[caseID]; ok {
		return l
	}
	return pulse.NoRecord()
}

func wrapped(s string) *string {
	v := "<p>" + s + "</p>"
	return &v
}

func caseEvent(t *testing.T, id, category, subcategory string, memos ...string) *pulse.CaseEvent {
	t.Helper()
	memoList := make([]map[string]string, 0, len(memos))
	for _, m := range memos {
		memoList = append(memoList, map[string]string{"text": m})
	}
	raw, err := json.Marshal(map[string]any{
		"id": id,
		"headers": map[string]any{"data": map[string]any{
			"number":          "CN-" + id,
			"processor":       "I123456",
			"resolutionError": map[string]string{"category": category, "subcategory": subcategory},
		}},
		"communication": map[string]any{"data": map[string]any{"memos": memoList}},
	})
	require.NoError(t, err)
	var ev pulse.CaseEvent
	require.NoError(t, json.Unmarshal(raw, &ev))
	return &ev
}

func TestHandleCaseUpdated_Evaluates(t *testing.T) {
	src := &stubSource{lookups: map[string]pulse.Lookup{
		"c1": pulse.Found(&pulse.Record{
			Symptom: wrapped("Crash"), Environment: wrapped("Prod"), StepsToReproduce: wrapped(""),
			BusinessImpact: wrapped("High"), CustomerContacts: wrapped(""),
			DataCollected: wrapped("Logs"), Research: wrapped(""), ResearchInternal: wrapped("x -- Swarm y"),
			Cause: wrapped(""), Solution: wrapped(""), SeeAlso: wrapped(""), InternalMemoHTML: wrapped(""),
			UpdatedOn: time.Now().UTC().Format(pulse.UpdatedOnLayout),
			UpdatedBy: "I123456",
		}),
	}}
	s := NewSession(src, pulse.Options{}, logging.Nop())

	vm := s.HandleCaseUpdated(context.Background(), caseEvent(t, "c1", "product_error", "bug", "KBA 123 has been attached - ok"))
	require.NotNil(t, vm)
	require.Equal(t, "CN-c1", vm.CaseNumber)
	require.Equal(t, 3, vm.Categorize.Count)
	require.Equal(t, 2, vm.Investigate.Count)
	require.True(t, vm.MandatoryComplete())
	require.True(t, vm.SwarmDetected)
	require.True(t, vm.KBAAttached)
	require.True(t, vm.CategorizationComplete)
	require.Empty(t, vm.Insights)
	require.True(t, s.Visible())
}

func TestHandleCaseUpdated_NoCaseHides(t *testing.T) {
	s := NewSession(&stubSource{}, pulse.Options{}, logging.Nop())
	require.NotNil(t, s.HandleCaseUpdated(context.Background(), caseEvent(t, "c1", "service_request", "")))
	require.True(t, s.Visible())

	require.Nil(t, s.HandleCaseUpdated(context.Background(), nil))
	require.False(t, s.Visible())

	_, ok := s.Widget()
	require.False(t, ok)

	s.HandleCaseUpdated(context.Background(), caseEvent(t, "c1", "", ""))
	require.Nil(t, s.HandleCaseUpdated(context.Background(), &pulse.CaseEvent{}))
	require.False(t, s.Visible())
}

func TestHandleCaseUpdated_FreshInsightsPerCase(t *testing.T) {
	s := NewSession(&stubSource{}, pulse.Options{}, logging.Nop())

	first := s.HandleCaseUpdated(context.Background(), caseEvent(t, "c1", "customer_partner_issue", "how_to_request"))
	require.Contains(t, first.Insights, pulse.InsightHowToRedirect)

	second := s.HandleCaseUpdated(context.Background(), caseEvent(t, "c2", "service_request", ""))
	require.NotContains(t, second.Insights, pulse.InsightHowToRedirect)
	require.Equal(t, []string{pulse.InsightServiceRequest}, second.Insights)
}

func TestHandleCaseUpdated_Serialized(t *testing.T) {
	src := &stubSource{delay: 5 * time.Millisecond}
	s := NewSession(src, pulse.Options{}, logging.Nop())

	ev := caseEvent(t, "c1", "", "")
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.HandleCaseUpdated(context.Background(), ev)
		}()
	}
	wg.Wait()

	require.Equal(t, int32(8), src.calls.Load())
	require.False(t, src.overlap.Load(), "case updates overlapped")
}

func TestPrefs_SurviveCaseSwitch(t *testing.T) {
	s := NewSession(&stubSource{}, pulse.Options{}, logging.Nop())
	require.Equal(t, DefaultPrefs(), s.Prefs())

	require.NoError(t, s.SetPosition("120px", "45.5%"))
	require.NoError(t, s.SetMode("compact"))

	s.HandleCaseUpdated(context.Background(), caseEvent(t, "c1", "", ""))
	s.HandleCaseUpdated(context.Background(), caseEvent(t, "c2", "", ""))

	require.Equal(t, Prefs{Left: "120px", Top: "45.5%", Mode: ModeCompact}, s.Prefs())

	w, ok := s.Widget()
	require.True(t, ok)
	require.Equal(t, "120px", w.Left)
	require.Equal(t, ModeCompact, w.Mode)

	s.ResetPosition()
	require.Equal(t, DefaultLeft, s.Prefs().Left)
	require.Equal(t, DefaultTop, s.Prefs().Top)
}

func TestSetPosition_Rejects(t *testing.T) {
	s := NewSession(&stubSource{}, pulse.Options{}, logging.Nop())
	for _, bad := range [][2]string{{"", "1px"}, {"10", "1px"}, {"1px", "calc(1px)"}, {"1px;color:red", "1px"}} {
		err := s.SetPosition(bad[0], bad[1])
		require.True(t, errors.Is(err, errors.ErrInvalidRequest), bad)
	}
	require.Equal(t, DefaultPrefs(), s.Prefs())
}

func TestSetMode_Rejects(t *testing.T) {
	s := NewSession(&stubSource{}, pulse.Options{}, logging.Nop())
	require.True(t, errors.Is(s.SetMode("tiny"), errors.ErrInvalidRequest))
}

func TestActivity(t *testing.T) {
	s := NewSession(&stubSource{}, pulse.Options{}, logging.Nop())
	require.False(t, s.Busy())

	s.Activity(true)
	s.Activity(true)
	require.True(t, s.Busy())
	s.Activity(false)
	require.True(t, s.Busy())
	s.Activity(false)
	require.False(t, s.Busy())

	s.Activity(false)
	require.False(t, s.Busy())
	s.Activity(true)
	require.True(t, s.Busy())
}

func TestDefaultSubscription(t *testing.T) {
	require.Equal(t, []string{"communication", "headers"}, DefaultSubscription().Sections)
}
