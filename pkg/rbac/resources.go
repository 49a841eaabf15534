package rbac

import (
	"fmt"
	"sort"
)

// ResourceType names a kind of record guarded by the access layer
type ResourceType string

const (
	// cms
	ResourcePage           ResourceType = "page"
	ResourceSection        ResourceType = "section"
	ResourceNavigationMenu ResourceType = "navigation_menu"
	ResourceGallery        ResourceType = "gallery"
	ResourceDocument       ResourceType = "document"

	// academics
	ResourceAcademicYear ResourceType = "academic_year"
	ResourceClass        ResourceType = "class"
	ResourceSubject      ResourceType = "subject"
	ResourceStudent      ResourceType = "student"
	ResourceParent       ResourceType = "parent"
	ResourceAttendance   ResourceType = "attendance"
	ResourceGrade        ResourceType = "grade"

	// communications
	ResourceNews         ResourceType = "news"
	ResourceEvent        ResourceType = "event"
	ResourceAnnouncement ResourceType = "announcement"
	ResourceNotification ResourceType = "notification"

	// accounts
	ResourceUserProfile    ResourceType = "user_profile"
	ResourceRole           ResourceType = "role"
	ResourceRoleAssignment ResourceType = "role_assignment"

	ResourceOrganization ResourceType = "organization"
	ResourceSchool       ResourceType = "school"
	ResourceAuditEvent   ResourceType = "audit_event"

	ResourceAdmissionApplication ResourceType = "admission_application"
	ResourceStudentTransfer      ResourceType = "student_transfer"
)

var resourceModules = map[ResourceType]Module{
	ResourcePage:           ModuleCMS,
	ResourceSection:        ModuleCMS,
	ResourceNavigationMenu: ModuleCMS,
	ResourceGallery:        ModuleCMS,
	ResourceDocument:       ModuleCMS,

	ResourceAcademicYear: ModuleAcademics,
	ResourceClass:        ModuleAcademics,
	ResourceSubject:      ModuleAcademics,
	ResourceStudent:      ModuleAcademics,
	ResourceParent:       ModuleAcademics,
	ResourceAttendance:   ModuleAcademics,
	ResourceGrade:        ModuleAcademics,

	ResourceNews:         ModuleCommunications,
	ResourceEvent:        ModuleCommunications,
	ResourceAnnouncement: ModuleCommunications,
	ResourceNotification: ModuleCommunications,

	ResourceUserProfile:    ModuleAccounts,
	ResourceRole:           ModuleAccounts,
	ResourceRoleAssignment: ModuleAccounts,

	ResourceOrganization: ModuleOrganizations,
	ResourceSchool:       ModuleSchools,
	ResourceAuditEvent:   ModuleAudit,

	ResourceAdmissionApplication: ModuleAdmissions,
	ResourceStudentTransfer:      ModuleTransfers,
}

// ModuleOf returns the module that grants access to a resource type
func ModuleOf(rt ResourceType) (Module, error) {
	module, ok := resourceModules[rt]
	if !ok {
		return "", fmt.Errorf("unknown resource type %q", rt)
	}
	return module, nil
}

// Valid reports whether rt is a known resource type
func (rt ResourceType) Valid() bool {
	_, ok := resourceModules[rt]
	return ok
}

// ResourceTypes returns every known resource type, sorted
func ResourceTypes() []ResourceType {
	out := make([]ResourceType, 0, len(resourceModules))
	for rt := range resourceModules {
		out = append(out, rt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
