package chetana

import (
	"strings"
	"testing"

	"go.uber.org/zap"
)

func testController() *Controller {
	logger, _ := zap.NewDevelopment()
	return NewController("sess-test", DefaultControllerConfig(), nil, logger)
}

func TestController_TurnLifecycle(t *testing.T) {
	c := testController()

	ctx := c.BeforeTurn("I want to add JWT auth.")
	if len(ctx.ActiveIntentions) != 1 {
		t.Fatalf("beforeTurn should extract the intention, got %d", len(ctx.ActiveIntentions))
	}
	if ctx.Affect.Confidence <= 0 || ctx.Affect.Confidence >= 1 {
		t.Errorf("baseline confidence out of (0,1): %f", ctx.Affect.Confidence)
	}

	c.AfterToolExecution("edit_file", true, 120, "added JWT auth middleware to login", false)
	c.AfterToolExecution("bash", false, 300, "tests failed", false)
	c.AfterTurn()

	in, _ := c.Sankalpa().Get(ctx.ActiveIntentions[0].ID)
	if in.Progress <= 0 {
		t.Error("matching tool output should advance the intention")
	}
	if _, ok := c.Atma().Mastery("edit_file"); !ok {
		t.Error("afterToolExecution should record tool mastery")
	}
	if w := c.Dhyana().ToolWeight("edit_file"); w <= 0 {
		t.Error("successful tool should gain attention weight")
	}
}

func TestController_SteeringSuggestions(t *testing.T) {
	c := testController()
	c.BeforeTurn("Let's fix the build.")

	// Grind frustration past the alert threshold.
	for i := 0; i < 10; i++ {
		c.AfterToolExecution("bash", false, 100, "error: build failed", false)
	}
	ctx := c.BeforeTurn("")

	found := false
	for _, s := range ctx.Steering {
		if strings.Contains(s, "simpler approach") {
			found = true
		}
	}
	if !found {
		t.Errorf("high frustration should suggest a simpler approach, got %v", ctx.Steering)
	}
}

func TestController_SnapshotRoundTrip(t *testing.T) {
	c := testController()
	c.BeforeTurn("I want to add rate limiting.")
	c.AfterToolExecution("edit_file", true, 80, "added rate limiting to the api", false)
	c.AfterTurn()

	snap := c.Snapshot()

	restored := testController()
	restored.Restore(snap)

	if restored.Bhava().State() != c.Bhava().State() {
		t.Error("affect state must survive the round trip")
	}
	if len(restored.Sankalpa().All()) != len(c.Sankalpa().All()) {
		t.Error("intentions must survive the round trip")
	}
	orig := c.Sankalpa().All()[0]
	got, ok := restored.Sankalpa().Get(orig.ID)
	if !ok {
		t.Fatal("intention id lost in round trip")
	}
	if got.Goal != orig.Goal || got.Progress != orig.Progress || got.Status != orig.Status {
		t.Errorf("intention fields drifted: %+v vs %+v", got, orig)
	}
}
