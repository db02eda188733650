package graph

import (
	"errors"
	"testing"

	"github.com/corralhq/corral/pkg/models"
)

func task(id string, deps ...string) *models.Task {
	return &models.Task{ID: id, Title: id, DependsOn: deps}
}

func TestBuild_RejectsCycle(t *testing.T) {
	_, err := Build([]*models.Task{
		task("a", "c"),
		task("b", "a"),
		task("c", "b"),
	})
	if !errors.Is(err, ErrCycle) {
		t.Errorf("expected ErrCycle, got %v", err)
	}
}

func TestBuild_SelfDependencyIsCycle(t *testing.T) {
	_, err := Build([]*models.Task{task("a", "a")})
	if !errors.Is(err, ErrCycle) {
		t.Errorf("expected ErrCycle for self-dependency, got %v", err)
	}
}

func TestBuild_IgnoresExternalDeps(t *testing.T) {
	g, err := Build([]*models.Task{
		task("a", "outside"),
		task("b", "a"),
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if g.Size() != 2 {
		t.Errorf("Size = %d, want 2", g.Size())
	}
}

func TestTopologicalOrder(t *testing.T) {
	g, err := Build([]*models.Task{
		task("deploy", "test"),
		task("test", "build"),
		task("build"),
		task("docs"),
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	order := g.TopologicalOrder()
	pos := make(map[string]int, len(order))
	for i, id := range order {
		pos[id] = i
	}
	if pos["build"] > pos["test"] || pos["test"] > pos["deploy"] {
		t.Errorf("dependencies not ordered first: %v", order)
	}
	if len(order) != 4 {
		t.Errorf("len = %d, want 4", len(order))
	}
}

func TestTopologicalOrder_KeepsInputOrderForFreeTasks(t *testing.T) {
	g, err := Build([]*models.Task{
		task("z"),
		task("m"),
		task("a"),
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	order := g.TopologicalOrder()
	want := []string{"z", "m", "a"}
	for i, id := range want {
		if order[i] != id {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestDependents(t *testing.T) {
	g, err := Build([]*models.Task{
		task("base"),
		task("x", "base"),
		task("y", "base"),
		task("z", "x"),
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	got := g.Dependents("base")
	if len(got) != 2 || got[0] != "x" || got[1] != "y" {
		t.Errorf("Dependents(base) = %v, want [x y]", got)
	}
	if deps := g.Dependents("z"); len(deps) != 0 {
		t.Errorf("Dependents(z) = %v, want none", deps)
	}
}
