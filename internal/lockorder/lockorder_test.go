package lockorder

import "testing"

func TestLevelString(t *testing.T) {
	cases := map[Level]string{
		LevelTxn: "Txn", LevelOpLog: "OpLog", LevelDocState: "DocState", LevelDiffCalculator: "DiffCalculator",
	}
	for level, want := range cases {
		if got := level.String(); got != want {
			t.Errorf("Level(%d).String() = %q, want %q", level, got, want)
		}
	}
}

func TestGuardAcquireRelease(t *testing.T) {
	g := NewGuard()
	g.Acquire(LevelTxn)
	g.Acquire(LevelOpLog)
	g.Release(LevelOpLog)
	g.Release(LevelTxn)
}
