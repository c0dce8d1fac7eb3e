package bgp

import "testing"

func TestUpdateQueueReaderStartsAtTail(t *testing.T) {
	q := NewUpdateQueue()
	q.Append(RouteUpdate{Kind: UpdateAdd, Key: "10.0.0.0/24"})

	r := q.NewReader()
	if _, ok := q.Get(r); ok {
		t.Fatal("a fresh reader must not see entries appended before its creation")
	}

	q.Append(RouteUpdate{Kind: UpdateAdd, Key: "10.0.1.0/24"})
	u, ok := q.Get(r)
	if !ok || u.Key != "10.0.1.0/24" {
		t.Fatalf("Get = (%+v, %v), want the post-creation add", u, ok)
	}
}

func TestUpdateQueueReadersProgressIndependently(t *testing.T) {
	q := NewUpdateQueue()
	slow := q.NewReader()
	fast := q.NewReader()

	q.Append(RouteUpdate{Kind: UpdateAdd, Key: "10.1.0.0/24"})
	q.Append(RouteUpdate{Kind: UpdateDelete, Key: "10.1.0.0/24"})
	q.Append(RouteUpdate{Kind: UpdateAdd, Key: "10.1.1.0/24"})

	// fast drains the whole log; slow has not moved.
	var seen []UpdateKind
	for u, ok := q.Get(fast); ok; u, ok = q.Next(fast) {
		seen = append(seen, u.Kind)
	}
	want := []UpdateKind{UpdateAdd, UpdateDelete, UpdateAdd}
	if len(seen) != len(want) {
		t.Fatalf("fast reader saw %d entries, want %d", len(seen), len(want))
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("fast reader entry %d = %v, want %v", i, seen[i], want[i])
		}
	}

	if got := q.Pending(slow); got != 3 {
		t.Fatalf("slow reader Pending = %d, want 3", got)
	}
	// Nothing is retired while slow still holds the log open.
	if q.Len() != 3 {
		t.Fatalf("Len = %d, want 3 while slowest reader is unmoved", q.Len())
	}

	u, ok := q.Get(slow)
	if !ok || u.Key != "10.1.0.0/24" || u.Kind != UpdateAdd {
		t.Fatalf("slow reader Get = (%+v, %v)", u, ok)
	}
}

func TestUpdateQueueRetiresEntriesBehindSlowestReader(t *testing.T) {
	q := NewUpdateQueue()
	r := q.NewReader()

	q.Append(RouteUpdate{Kind: UpdateAdd, Key: "10.2.0.0/24"})
	q.Append(RouteUpdate{Kind: UpdateAdd, Key: "10.2.1.0/24"})

	q.Next(r) // consumed the first entry; it is now unreachable by anyone
	if q.Len() != 1 {
		t.Fatalf("Len = %d, want 1 after the only reader passed one entry", q.Len())
	}

	q.DestroyReader(r)
	if q.Len() != 0 {
		t.Fatalf("Len = %d, want 0 after last reader destroyed", q.Len())
	}
}

func TestUpdateQueueAppendWithNoReadersRetainsNothing(t *testing.T) {
	q := NewUpdateQueue()
	q.Append(RouteUpdate{Kind: UpdateAdd, Key: "10.3.0.0/24"})
	if q.Len() != 0 {
		t.Fatalf("Len = %d, want 0 with no readers", q.Len())
	}
}

func TestUpdateQueueFFwdSkipsPending(t *testing.T) {
	q := NewUpdateQueue()
	r := q.NewReader()
	q.Append(RouteUpdate{Kind: UpdateAdd, Key: "10.4.0.0/24"})
	q.Append(RouteUpdate{Kind: UpdateAdd, Key: "10.4.1.0/24"})

	q.FFwd(r)
	if _, ok := q.Get(r); ok {
		t.Fatal("Get after FFwd should report nothing pending")
	}

	q.Append(RouteUpdate{Kind: UpdateDelete, Key: "10.4.0.0/24"})
	u, ok := q.Get(r)
	if !ok || u.Kind != UpdateDelete {
		t.Fatalf("Get after FFwd+Append = (%+v, %v), want the new delete", u, ok)
	}
}

func TestUpdateQueueFlushResetsAllReaders(t *testing.T) {
	q := NewUpdateQueue()
	a := q.NewReader()
	b := q.NewReader()
	q.Append(RouteUpdate{Kind: UpdateAdd, Key: "10.5.0.0/24"})
	q.Next(a) // a is ahead, b is behind

	q.Flush()
	if q.Len() != 0 {
		t.Fatalf("Len after Flush = %d, want 0", q.Len())
	}
	if _, ok := q.Get(a); ok {
		t.Fatal("reader a should have nothing pending after Flush")
	}
	if _, ok := q.Get(b); ok {
		t.Fatal("reader b should have nothing pending after Flush")
	}
}

func TestRibOutLogsToAttachedUpdateQueue(t *testing.T) {
	out := NewRibOut()
	q := NewUpdateQueue()
	out.AttachUpdateQueue(q)
	r := q.NewReader()

	prefix := mustNet(t, "10.6.2.0/24")
	out.AddRoute(SubnetRoute{Net: prefix, Attrs: &PathAttributeList{}})
	out.ReplaceRoute("10.6.2.0/24", SubnetRoute{Net: prefix, Attrs: &PathAttributeList{MED: 4, HasMED: true}})
	out.DeleteRoute("10.6.2.0/24")

	u, ok := q.Get(r)
	if !ok || u.Kind != UpdateAdd || u.Key != "10.6.2.0/24" {
		t.Fatalf("first logged entry = (%+v, %v), want the add", u, ok)
	}
	u, ok = q.Next(r)
	if !ok || u.Kind != UpdateReplace || u.OldKey != "10.6.2.0/24" || !u.Route.Attrs.HasMED {
		t.Fatalf("second logged entry = (%+v, %v), want the replace", u, ok)
	}
	u, ok = q.Next(r)
	if !ok || u.Kind != UpdateDelete || u.Key != "10.6.2.0/24" {
		t.Fatalf("third logged entry = (%+v, %v), want the delete", u, ok)
	}
	if _, ok = q.Next(r); ok {
		t.Fatal("no fourth entry expected")
	}
}
