package workflow

import (
	"context"
	"sort"

	"github.com/google/uuid"
)

// GenerateSubFlows builds one sub-flow per policy, in the given policy order.
func (e *Engine) GenerateSubFlows(ctx context.Context, policies []Policy, rc RequestContext) (WorkflowResolution, error) {
	wf := WorkflowResolution{
		Resolvers: []ResolverEntry{},
		Watchers:  []WatcherEntry{},
		SubFlows:  make([]SubFlow, 0, len(policies)),
	}
	resolvers := newResolverIndex()
	watchers := newWatcherIndex()

	for _, policy := range policies {
		steps := make([]SubFlowStep, 0, len(policy.Steps))
		for _, step := range policy.Steps {
			safety, err := e.ResolveStepWithSafety(ctx, step, rc)
			if err != nil {
				return WorkflowResolution{}, err
			}
			steps = append(steps, SubFlowStep{
				ID:                 uuid.NewString(),
				Step:               step,
				ResolverIDs:        safety.ResolverIDs,
				NominalResolverIDs: safety.NominalResolverIDs,
				FallbackUsed:       safety.FallbackUsed,
				FallbackLevel:      safety.Level,
				Skipped:            safety.StepSkipped,
				State:              safety.State,
			})
		}

		sf := SubFlow{
			ID:         uuid.NewString(),
			PolicyID:   policy.ID,
			PolicyName: policy.Name,
			Groups:     groupSteps(steps),
			WatcherIDs: []string{},
		}
		sf.Advance()

		for _, step := range sf.Steps() {
			if step.Skipped {
				continue
			}
			for _, id := range step.ResolverIDs {
				resolvers.add(id, step.Step.ResolverKind, step.Step.Sequence)
			}
		}

		var watcherIDs []string
		for _, watcher := range policy.Watchers {
			ids, err := e.ResolveStep(ctx, Step{
				RuleID:       watcher.RuleID,
				ResolverKind: watcher.ResolverKind,
				ResolverID:   watcher.ResolverID,
				Scopes:       watcher.Scopes,
				Action:       ActionNotify,
			}, rc)
			if err != nil {
				return WorkflowResolution{}, err
			}
			ids = excludeUser(ids, rc.RequesterID)
			for _, id := range ids {
				watchers.add(id, watcher.NotifyEmail, watcher.NotifyPush)
			}
			watcherIDs = append(watcherIDs, ids...)
		}
		sf.WatcherIDs = uniqueSorted(watcherIDs)

		wf.SubFlows = append(wf.SubFlows, sf)
	}

	wf.Resolvers = resolvers.entries()
	wf.Watchers = watchers.entries()
	return wf, nil
}

// groupSteps orders steps by sequence, rule position and resolver, then splits them by sequence.
func groupSteps(steps []SubFlowStep) []StepGroup {
	sorted := append([]SubFlowStep(nil), steps...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Step.Sequence != b.Step.Sequence {
			return a.Step.Sequence < b.Step.Sequence
		}
		if a.Step.Position != b.Step.Position {
			return a.Step.Position < b.Step.Position
		}
		if a.Step.ResolverID != b.Step.ResolverID {
			return a.Step.ResolverID < b.Step.ResolverID
		}
		return a.Step.RuleID < b.Step.RuleID
	})

	groups := []StepGroup{}
	for _, step := range sorted {
		n := len(groups)
		if n == 0 || groups[n-1].Sequence != step.Step.Sequence {
			groups = append(groups, StepGroup{Sequence: step.Step.Sequence})
			n++
		}
		groups[n-1].Steps = append(groups[n-1].Steps, step)
	}
	return groups
}

// Advance opens the first undecided group: its PENDING steps become READY.
// It returns the IDs of the steps it changed.
func (sf *SubFlow) Advance() []string {
	for gi := range sf.Groups {
		group := &sf.Groups[gi]
		if group.Closed() {
			continue
		}
		var changed []string
		for si := range group.Steps {
			if group.Steps[si].State == StepPending {
				group.Steps[si].State = StepReady
				changed = append(changed, group.Steps[si].ID)
			}
		}
		return changed
	}
	return nil
}

// FindStep returns a pointer to the step with the given ID and its sub-flow.
func (r *WorkflowResolution) FindStep(stepID string) (*SubFlow, *SubFlowStep) {
	for fi := range r.SubFlows {
		sf := &r.SubFlows[fi]
		for gi := range sf.Groups {
			for si := range sf.Groups[gi].Steps {
				if sf.Groups[gi].Steps[si].ID == stepID {
					return sf, &sf.Groups[gi].Steps[si]
				}
			}
		}
	}
	return nil, nil
}

type resolverIndex struct {
	byUser map[string]ResolverEntry
}

func newResolverIndex() *resolverIndex {
	return &resolverIndex{byUser: map[string]ResolverEntry{}}
}

// add keeps the lowest sequence seen for a user.
func (x *resolverIndex) add(userID string, kind ResolverKind, sequence int) {
	if userID == "" {
		return
	}
	existing, ok := x.byUser[userID]
	if ok && existing.Sequence <= sequence {
		return
	}
	x.byUser[userID] = ResolverEntry{UserID: userID, Kind: kind, Sequence: sequence}
}

func (x *resolverIndex) entries() []ResolverEntry {
	out := make([]ResolverEntry, 0, len(x.byUser))
	for _, entry := range x.byUser {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Sequence != out[j].Sequence {
			return out[i].Sequence < out[j].Sequence
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}

type watcherIndex struct {
	byUser map[string]WatcherEntry
}

func newWatcherIndex() *watcherIndex {
	return &watcherIndex{byUser: map[string]WatcherEntry{}}
}

func (x *watcherIndex) add(userID string, email, push bool) {
	entry := x.byUser[userID]
	entry.UserID = userID
	entry.NotifyEmail = entry.NotifyEmail || email
	entry.NotifyPush = entry.NotifyPush || push
	x.byUser[userID] = entry
}

func (x *watcherIndex) entries() []WatcherEntry {
	out := make([]WatcherEntry, 0, len(x.byUser))
	for _, entry := range x.byUser {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}
