// Package authz is the access decision point: the single place that answers
// whether a principal may perform an action on a resource type or record.
//
// Decide is a pure function of its Request. DecisionPoint adds the side
// effects: audit events for denials, state-changing allows and platform
// access, a decision counter and a trace span.
//
//	req := authz.RequestFromContext(ctx, rbac.OpPublish, rbac.ResourcePage, &rbac.Instance{
//		ID:             page.ID.String(),
//		Type:           rbac.ResourcePage,
//		OrganizationID: page.OrganizationID,
//		SchoolID:       &page.SchoolID,
//	})
//	if err := point.Authorize(ctx, req); err != nil {
//		httputil.WriteAccessError(w, r, err)
//		return
//	}
//
// Listing endpoints ask for the row filter instead and apply it to their query:
//
//	filter, err := point.ScopeFilter(ctx, authz.RequestFromContext(ctx, rbac.OpView, rbac.ResourceStudent, nil))
//	where, args := filter.Clause(rbac.Columns{Organization: "organization_id", School: "school_id", Owner: "guardian_ids"}, 1)
//
// Denials carry a Reason (no_role_in_scope, action_not_granted, outside_scope)
// that is kept in the audit trail. Clients only ever see "forbidden".
package authz
