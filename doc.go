// Package adminflow provides an approval workflow engine for privileged
// administrative actions such as escrow release, refund, order finalization
// and dispute resolution.
//
// Every command is validated by concurrent checks, risk scored, routed to a
// reviewer and committed as a versioned state change together with its audit
// event and outbox messages. Approved requests trigger the registered side
// effect, and the outbox dispatcher delivers events at least once.
//
// End-users typically interact with the engine via the Service façade:
//
//	srv, _ := adminflow.New(adminflow.WithResourceLookup(lookup), adminflow.WithRoster(roster))
//	_ = srv.Runtime().Subscribe(ctx, handler)
//	_ = srv.Runtime().Start(ctx)
//	submitted, _ := srv.Submit(ctx, &model.Command{AdminID: "a1", ResourceType: model.ResourceEscrow, ResourceID: "e1", Action: model.ActionEscrowRelease})
//	_, _ = srv.Process(ctx, &model.Command{ApprovalID: submitted.State.ApprovalID, AdminID: "a2", ...})
//
// Storage defaults to memory; see service/dao/postgres for the durable store.
// The in-memory event queue must have a subscriber before the runtime starts.
package adminflow
