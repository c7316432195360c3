package transcript

import (
	"testing"

	"github.com/centavohq/voicecore/pkg/logging"
)

func newAggregator() *Aggregator {
	return NewAggregator(logging.Init("error", "text"))
}

func TestDeltasAccumulatePerGeneration(t *testing.T) {
	a := newAggregator()
	a.Delta(RoleAssistant, "gen_1", "You spent ")
	a.Delta(RoleAssistant, "gen_1", "$42 on ")
	a.Delta(RoleAssistant, "gen_1", "coffee.")

	entries := a.Entries()
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].Text != "You spent $42 on coffee." {
		t.Fatalf("unexpected text %q", entries[0].Text)
	}
	if entries[0].Final {
		t.Fatal("entry final before commit")
	}
}

func TestEntriesKeepUtteranceOrder(t *testing.T) {
	a := newAggregator()
	a.Delta(RoleUser, "item_1", "What did I spend")
	a.Delta(RoleAssistant, "gen_1", "Let me check")
	a.Delta(RoleUser, "item_1", " last week?")
	a.Commit(RoleUser, "item_1", "")
	a.Commit(RoleAssistant, "gen_1", "")

	entries := a.Entries()
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].Role != RoleUser || entries[0].Text != "What did I spend last week?" {
		t.Fatalf("unexpected first entry %+v", entries[0])
	}
	if entries[1].Role != RoleAssistant {
		t.Fatalf("unexpected second entry %+v", entries[1])
	}
}

func TestCommitReplacesWithAuthoritativeText(t *testing.T) {
	a := newAggregator()
	a.Delta(RoleUser, "item_1", "what did i spend on cofee")
	a.Commit(RoleUser, "item_1", "What did I spend on coffee?")

	entries := a.Entries()
	if entries[0].Text != "What did I spend on coffee?" {
		t.Fatalf("commit text not applied: %q", entries[0].Text)
	}
	if !entries[0].Final {
		t.Fatal("entry not final after commit")
	}
}

func TestDeltaAfterCommitIsDropped(t *testing.T) {
	a := newAggregator()
	a.Delta(RoleAssistant, "gen_1", "Done.")
	a.Commit(RoleAssistant, "gen_1", "")
	a.Delta(RoleAssistant, "gen_1", " Or not.")

	entries := a.Entries()
	if entries[0].Text != "Done." {
		t.Fatalf("final entry mutated: %q", entries[0].Text)
	}
}

func TestCommitWithoutDeltasCreatesEntry(t *testing.T) {
	a := newAggregator()
	a.Commit(RoleUser, "item_1", "Stop.")

	entries := a.Entries()
	if len(entries) != 1 || entries[0].Text != "Stop." || !entries[0].Final {
		t.Fatalf("unexpected entries %+v", entries)
	}
}

func TestSameGenerationDifferentRolesAreSeparate(t *testing.T) {
	a := newAggregator()
	a.Delta(RoleUser, "gen_1", "hello")
	a.Delta(RoleAssistant, "gen_1", "hi there")

	entries := a.Entries()
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
}

func TestOnUpdateObservesProgress(t *testing.T) {
	a := newAggregator()
	var seen []string
	a.OnUpdate(func(e Entry) { seen = append(seen, e.Text) })

	a.Delta(RoleAssistant, "gen_1", "a")
	a.Delta(RoleAssistant, "gen_1", "b")
	a.Commit(RoleAssistant, "gen_1", "ab!")

	want := []string{"a", "ab", "ab!"}
	if len(seen) != len(want) {
		t.Fatalf("got %d updates, want %d", len(seen), len(want))
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("update %d: got %q, want %q", i, seen[i], want[i])
		}
	}
}

func TestResetClearsState(t *testing.T) {
	a := newAggregator()
	a.Delta(RoleUser, "item_1", "hello")
	a.Commit(RoleUser, "item_1", "")
	a.Reset()

	if len(a.Entries()) != 0 {
		t.Fatal("entries survived reset")
	}
	a.Delta(RoleUser, "item_1", "again")
	entries := a.Entries()
	if len(entries) != 1 || entries[0].Text != "again" {
		t.Fatalf("reused key blocked after reset: %+v", entries)
	}
}
