// Package orgs onboards tenants and manages their lifecycle.
//
// Onboarding creates the organization, optionally its first school, and
// grants org_admin to the principal that will run it. Every step is written
// to the audit trail carried by the context.
//
//	result, err := svc.Onboard(ctx, &orgs.OnboardRequest{
//		Name:             "Greenwood Trust",
//		School:           &orgs.SchoolRequest{Name: "Greenwood High"},
//		AdminPrincipalID: &adminID,
//	})
//
// UpdateStatus changes the subscription status or deactivates an
// organization. Deactivated organizations stop resolving as tenants.
//
// The service does not authorize; the platform API checks the caller's
// platform role first.
package orgs
