package cmclient

import "testing"

func TestParseServerList(t *testing.T) {
	fixture := `{
		"response": {
			"serverlist": [
				{"endpoint": "cm0.example.invalid:27017"},
				{"endpoint": "cm1.example.invalid:27018"}
			]
		}
	}`

	servers, err := parseServerList([]byte(fixture))
	if err != nil {
		t.Fatalf("parseServerList: %v", err)
	}
	if len(servers) != 2 {
		t.Fatalf("got %d servers, want 2", len(servers))
	}
	if servers[0].Host != "cm0.example.invalid" || servers[0].Port != 27017 {
		t.Errorf("servers[0] = %+v", servers[0])
	}
	if servers[1].Port != 27018 {
		t.Errorf("servers[1].Port = %d, want 27018", servers[1].Port)
	}
}

func TestParseServerListEmptyErrors(t *testing.T) {
	fixture := `{"response": {"serverlist": []}}`
	if _, err := parseServerList([]byte(fixture)); err == nil {
		t.Fatal("expected error for empty server list")
	}
}

func TestParseServerListSkipsUnparsableEntries(t *testing.T) {
	fixture := `{
		"response": {
			"serverlist": [
				{"endpoint": "not-a-valid-endpoint"},
				{"endpoint": "cm0.example.invalid:27017"}
			]
		}
	}`
	servers, err := parseServerList([]byte(fixture))
	if err != nil {
		t.Fatalf("parseServerList: %v", err)
	}
	if len(servers) != 1 {
		t.Fatalf("got %d servers, want 1", len(servers))
	}
}

func TestServerDirectorySnapshotIsACopy(t *testing.T) {
	dir := NewServerDirectory([]Endpoint{{Host: "a", Port: 1}})

	snap := dir.Snapshot()
	snap[0].Host = "mutated"

	second := dir.Snapshot()
	if second[0].Host != "a" {
		t.Errorf("mutating a snapshot affected the directory: %+v", second[0])
	}
}

func TestServerDirectoryUpdateReplacesList(t *testing.T) {
	dir := NewServerDirectory([]Endpoint{{Host: "a", Port: 1}})
	dir.Update([]Endpoint{{Host: "b", Port: 2}, {Host: "c", Port: 3}})

	snap := dir.Snapshot()
	if len(snap) != 2 || snap[0].Host != "b" || snap[1].Host != "c" {
		t.Errorf("snapshot after update = %+v", snap)
	}
}
