// Package cli implements campusctl, the administrative command line of a
// campus deployment.
//
// # Commands
//
// migrate: apply schema migrations and seed the system roles
//
//	campusctl migrate
//
// create-superuser: create a platform super_admin
//
//	CAMPUS_SUPERUSER_PASSWORD=... campusctl create-superuser --email root@campus.example
//
// onboard: create an organization, its first school and its org_admin
//
//	campusctl onboard \
//		--name "Greenwood Trust" \
//		--school "Greenwood High" \
//		--timezone Europe/London \
//		--admin-email head@greenwood.example
//
// token create: issue an API token
//
//	campusctl token create --email head@greenwood.example --name ci --ttl 720h
//
// roles matrix: print the system permission matrix
//
//	campusctl roles matrix --format json
//
// audit archive: copy a day of an organization's audit trail to S3
//
//	campusctl audit archive --org 7c9e... --day 2026-03-01
//
// # Configuration
//
// Commands read the same configuration as the server: --config or
// $CAMPUS_CONFIG_FILE, overlaid with CAMPUS_* environment variables.
package cli
