package sharedobj

import "testing"

func obj(path string, inode uint64) LooseObject {
	return LooseObject{Path: path, Device: 1, Inode: inode}
}

func TestEquivalenceGroupPlanSingleton(t *testing.T) {
	g := &EquivalenceGroup{
		Device:   1,
		Clusters: []*InodeCluster{{Device: 1, Inode: 1, Members: []LooseObject{obj("/a/obj", 1)}}},
	}
	if plan := g.Plan(); plan != nil {
		t.Fatalf("Plan() on a singleton group = %+v, want nil", plan)
	}
}

func TestEquivalenceGroupPlanPicksLargestCluster(t *testing.T) {
	g := &EquivalenceGroup{
		Device: 1,
		Clusters: []*InodeCluster{
			{Device: 1, Inode: 10, Members: []LooseObject{obj("/a/obj", 10)}},
			{Device: 1, Inode: 20, Members: []LooseObject{
				obj("/b/obj", 20),
				obj("/c/obj", 20),
			}},
		},
	}

	plan := g.Plan()
	if plan == nil {
		t.Fatal("Plan() = nil, want a plan spanning two clusters")
	}
	if plan.Source.Inode != 20 {
		t.Errorf("Source.Inode = %d, want 20 (the larger cluster)", plan.Source.Inode)
	}
	if plan.Source.Path != "/b/obj" {
		t.Errorf("Source.Path = %q, want the least path within the chosen cluster", plan.Source.Path)
	}
	if len(plan.Targets) != 1 || plan.Targets[0].Inode != 10 {
		t.Errorf("Targets = %+v, want exactly the smaller cluster's representative", plan.Targets)
	}
}

func TestEquivalenceGroupPlanTieBreaksByInode(t *testing.T) {
	g := &EquivalenceGroup{
		Device: 1,
		Clusters: []*InodeCluster{
			{Device: 1, Inode: 30, Members: []LooseObject{obj("/z/obj", 30)}},
			{Device: 1, Inode: 5, Members: []LooseObject{obj("/a/obj", 5)}},
		},
	}

	plan := g.Plan()
	if plan == nil {
		t.Fatal("Plan() = nil")
	}
	if plan.Source.Inode != 5 {
		t.Errorf("Source.Inode = %d, want 5 (equal-size clusters tie-break to lowest inode)", plan.Source.Inode)
	}
}

func TestInodeClusterRepresentativeIsLeastPath(t *testing.T) {
	c := &InodeCluster{Device: 1, Inode: 1, Members: []LooseObject{
		obj("/z/obj", 1),
		obj("/a/obj", 1),
		obj("/m/obj", 1),
	}}
	if got := c.representative().Path; got != "/a/obj" {
		t.Errorf("representative().Path = %q, want /a/obj", got)
	}
}

func TestReplacementOutcomeString(t *testing.T) {
	cases := map[ReplacementOutcome]string{
		Linked:         "linked",
		Skipped:        "skipped",
		RolledBack:     "rolled-back",
		RollbackFailed: "ROLLBACK-FAILED",
	}
	for outcome, want := range cases {
		if got := outcome.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", outcome, got, want)
		}
	}
}
