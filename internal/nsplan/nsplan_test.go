package nsplan

import (
	"testing"

	"github.com/tonidy/pak-rt/internal/container"
	"github.com/tonidy/pak-rt/internal/pathstore"
)

func TestWriteThenReadRoundTrip(t *testing.T) {
	store := pathstore.New(t.TempDir())
	c := &container.Container{
		Name:     "alpha",
		Hostname: "alpha",
		HostUID:  1000,
		HostGID:  1000,
	}
	if err := store.MkdirTree(c.Name); err != nil {
		t.Fatal(err)
	}

	if err := Write(store, c); err != nil {
		t.Fatalf("Write: %v", err)
	}

	uts, err := Read(store, c.Name, "uts")
	if err != nil {
		t.Fatalf("Read uts: %v", err)
	}
	if uts["hostname"] != "alpha" {
		t.Errorf("hostname = %q, want alpha", uts["hostname"])
	}
	if uts["domainname"] != domainname {
		t.Errorf("domainname = %q, want %q", uts["domainname"], domainname)
	}

	user, err := Read(store, c.Name, "user")
	if err != nil {
		t.Fatalf("Read user: %v", err)
	}
	if user["uid_map"] != "0 1000 1" {
		t.Errorf("uid_map = %q, want %q", user["uid_map"], "0 1000 1")
	}
}

func TestExistsRequiresAllFiles(t *testing.T) {
	store := pathstore.New(t.TempDir())
	c := &container.Container{Name: "alpha", Hostname: "alpha"}
	if err := store.MkdirTree(c.Name); err != nil {
		t.Fatal(err)
	}

	if Exists(store, c.Name) {
		t.Fatal("Exists should be false before Write")
	}
	if err := Write(store, c); err != nil {
		t.Fatal(err)
	}
	if !Exists(store, c.Name) {
		t.Fatal("Exists should be true after Write")
	}
}

func TestRemoveDeletesDescriptors(t *testing.T) {
	store := pathstore.New(t.TempDir())
	c := &container.Container{Name: "alpha", Hostname: "alpha"}
	if err := store.MkdirTree(c.Name); err != nil {
		t.Fatal(err)
	}
	if err := Write(store, c); err != nil {
		t.Fatal(err)
	}
	if err := Remove(store, c.Name); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if Exists(store, c.Name) {
		t.Fatal("Exists should be false after Remove")
	}
}
