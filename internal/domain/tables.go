package domain

// Table names as they exist in the data store.
const (
	TableProfile         = "profile"
	TableSkills          = "skills"
	TableExperience      = "experience"
	TableProjects        = "projects"
	TableSocialLinks     = "social_links"
	TableContactMessages = "contact_messages"
	TableAdminUsers      = "admin_users"
)

// Tables lists every content table, in provisioning order.
var Tables = []string{
	TableProfile,
	TableSkills,
	TableExperience,
	TableProjects,
	TableSocialLinks,
	TableContactMessages,
}
