package syncnet

import "testing"

func TestPeersAddIdempotent(t *testing.T) {
	d := NewPeers()

	if !d.Add("10.0.0.1", 8080) {
		t.Fatal("first add reported existing")
	}
	if d.Add("10.0.0.1", 8080) {
		t.Fatal("re-add reported new")
	}
	if d.Len() != 1 {
		t.Fatalf("Len = %d, want 1", d.Len())
	}

	// Same host, different port is a distinct peer.
	if !d.Add("10.0.0.1", 8081) {
		t.Fatal("distinct port reported existing")
	}
	if d.Len() != 2 {
		t.Fatalf("Len = %d, want 2", d.Len())
	}
}

func TestPeersListDeterministic(t *testing.T) {
	d := NewPeers()
	d.Add("10.0.0.2", 9000)
	d.Add("10.0.0.1", 9000)
	d.Add("10.0.0.1", 8000)

	got := d.List()
	want := []string{"10.0.0.1:8000", "10.0.0.1:9000", "10.0.0.2:9000"}
	if len(got) != len(want) {
		t.Fatalf("List returned %d peers, want %d", len(got), len(want))
	}
	for i, p := range got {
		if p.Addr() != want[i] {
			t.Errorf("peer %d = %s, want %s", i, p.Addr(), want[i])
		}
	}
}
