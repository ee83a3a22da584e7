package room

import (
	"fmt"
	"sync"
	"testing"

	"codeverse/pkg/errors"
)

func TestCreateAndJoinLifecycle(t *testing.T) {
	reg := NewRegistry()
	if _, err := reg.Create("r1", 42); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := reg.Create("r1", 42); errors.GetCode(err) != errors.BattleCreateFailed {
		t.Fatalf("duplicate create error = %v", err)
	}

	view, ready, err := reg.Join("r1", "conn-a", "alice")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if ready {
		t.Fatal("room should not be ready with one player")
	}
	if view.Status != StatusWaiting {
		t.Fatalf("status = %q, want waiting", view.Status)
	}

	view, ready, err = reg.Join("r1", "conn-b", "bob")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if !ready {
		t.Fatal("second distinct player must make the room ready")
	}
	if view.Status != StatusReady {
		t.Fatalf("status = %q, want ready", view.Status)
	}
	if got := view.UserIDs(); len(got) != 2 || got[0] != "alice" || got[1] != "bob" {
		t.Fatalf("user ids = %v", got)
	}
}

func TestJoinIsIdempotentPerConnection(t *testing.T) {
	reg := NewRegistry()
	_, _ = reg.Create("r1", 1)
	_, _, _ = reg.Join("r1", "conn-a", "alice")

	view, ready, err := reg.Join("r1", "conn-a", "alice")
	if err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	if ready {
		t.Fatal("rejoin must not trigger readiness")
	}
	if len(view.Members) != 1 {
		t.Fatalf("members = %d, want 1", len(view.Members))
	}
}

func TestJoinRejectsThirdUser(t *testing.T) {
	reg := NewRegistry()
	_, _ = reg.Create("r1", 1)
	_, _, _ = reg.Join("r1", "conn-a", "alice")
	_, _, _ = reg.Join("r1", "conn-b", "bob")

	_, _, err := reg.Join("r1", "conn-c", "carol")
	if errors.GetCode(err) != errors.RoomFull {
		t.Fatalf("third user error = %v, want RoomFull", err)
	}
}

func TestJoinUnknownRoom(t *testing.T) {
	reg := NewRegistry()
	_, _, err := reg.Join("ghost", "conn-a", "alice")
	if errors.GetCode(err) != errors.RoomNotFound {
		t.Fatalf("error = %v, want RoomNotFound", err)
	}
}

func TestJoinEndedRoom(t *testing.T) {
	reg := NewRegistry()
	_, _ = reg.Create("r1", 1)
	_, _, _ = reg.Join("r1", "conn-a", "alice")
	_, _, _ = reg.Join("r1", "conn-b", "bob")
	_, _ = reg.MarkEnded("r1", "alice", EndReasonWin)

	_, _, err := reg.Join("r1", "conn-c", "carol")
	if errors.GetCode(err) != errors.RoomClosed {
		t.Fatalf("error = %v, want RoomClosed", err)
	}
}

func TestJoinSecondRoomLeavesFirst(t *testing.T) {
	reg := NewRegistry()
	_, _ = reg.Create("r1", 1)
	_, _ = reg.Create("r2", 2)
	_, _, _ = reg.Join("r1", "conn-a", "alice")
	_, _, _ = reg.Join("r2", "conn-a", "alice")

	if members := reg.Members("r1"); len(members) != 0 {
		t.Fatalf("r1 members = %v, want empty", members)
	}
	view, err := reg.RoomOf("conn-a")
	if err != nil {
		t.Fatalf("room of: %v", err)
	}
	if view.ID != "r2" {
		t.Fatalf("room = %s, want r2", view.ID)
	}
}

func TestLeaveDropsEmptyRoom(t *testing.T) {
	reg := NewRegistry()
	_, _ = reg.Create("r1", 1)
	_, _, _ = reg.Join("r1", "conn-a", "alice")

	view, userID, ok := reg.Leave("conn-a")
	if !ok || userID != "alice" {
		t.Fatalf("leave = (%v, %q, %v)", view, userID, ok)
	}
	if reg.Len() != 0 {
		t.Fatalf("registry holds %d rooms, want 0", reg.Len())
	}
	if _, err := reg.Get("r1"); errors.GetCode(err) != errors.RoomNotFound {
		t.Fatalf("get after gc = %v, want RoomNotFound", err)
	}
}

func TestLeaveDoesNotEndBattle(t *testing.T) {
	reg := NewRegistry()
	_, _ = reg.Create("r1", 1)
	_, _, _ = reg.Join("r1", "conn-a", "alice")
	_, _, _ = reg.Join("r1", "conn-b", "bob")

	view, _, ok := reg.Leave("conn-b")
	if !ok {
		t.Fatal("leave failed")
	}
	if view.Status != StatusReady {
		t.Fatalf("status = %q, leaving must not end the battle", view.Status)
	}
	if _, won := reg.MarkEnded("r1", "alice", EndReasonWin); !won {
		t.Fatal("the remaining player can still win")
	}
}

func TestLeaveUnknownConnection(t *testing.T) {
	reg := NewRegistry()
	if _, _, ok := reg.Leave("ghost"); ok {
		t.Fatal("leave of unknown connection reported success")
	}
}

func TestMarkEndedIsSingleShot(t *testing.T) {
	reg := NewRegistry()
	_, _ = reg.Create("r1", 1)
	_, _, _ = reg.Join("r1", "conn-a", "alice")
	_, _, _ = reg.Join("r1", "conn-b", "bob")

	view, won := reg.MarkEnded("r1", "alice", EndReasonWin)
	if !won {
		t.Fatal("first MarkEnded must win")
	}
	if view.WinnerID != "alice" || view.Status != StatusEnded {
		t.Fatalf("view = %+v", view)
	}

	view, won = reg.MarkEnded("r1", "bob", EndReasonWin)
	if won {
		t.Fatal("second MarkEnded must lose the race")
	}
	if view.WinnerID != "alice" {
		t.Fatalf("recorded winner = %q, want alice", view.WinnerID)
	}
}

func TestMarkEndedRace(t *testing.T) {
	reg := NewRegistry()
	_, _ = reg.Create("r1", 1)
	_, _, _ = reg.Join("r1", "conn-a", "alice")
	_, _, _ = reg.Join("r1", "conn-b", "bob")

	const contenders = 16
	var wg sync.WaitGroup
	wins := make(chan string, contenders)
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, won := reg.MarkEnded("r1", fmt.Sprintf("user-%d", i), EndReasonWin); won {
				wins <- fmt.Sprintf("user-%d", i)
			}
		}(i)
	}
	wg.Wait()
	close(wins)

	var winners []string
	for w := range wins {
		winners = append(winners, w)
	}
	if len(winners) != 1 {
		t.Fatalf("got %d winners, want exactly 1", len(winners))
	}
	view, _ := reg.Get("r1")
	if view.WinnerID != winners[0] {
		t.Fatalf("recorded winner %q != racing winner %q", view.WinnerID, winners[0])
	}
}

func TestSameUserTwoConnectionsStaysWaiting(t *testing.T) {
	reg := NewRegistry()
	_, _ = reg.Create("r1", 1)
	_, _, _ = reg.Join("r1", "conn-a", "alice")
	view, ready, err := reg.Join("r1", "conn-b", "alice")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if ready || view.Status != StatusWaiting {
		t.Fatalf("same user on two connections made the room %q", view.Status)
	}
}
