package query

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/aTrapDeer/portfolio-backend/internal/domain"
)

// Key identifies one cache entry: an entity (its table name) and the
// canonical encoding of the filter it was read with. Equal filters always
// produce equal keys.
type Key struct {
	Entity string
	Params string
}

func NewKey(entity string, params url.Values) Key {
	// Encode sorts by parameter name
	return Key{Entity: entity, Params: params.Encode()}
}

func (k Key) String() string {
	if k.Params == "" {
		return k.Entity
	}
	return k.Entity + "?" + k.Params
}

func (k Key) values() url.Values {
	v, _ := url.ParseQuery(k.Params)
	return v
}

func setString(v url.Values, name, value string) {
	if value != "" {
		v.Set(name, value)
	}
}

func setBool(v url.Values, name string, value bool) {
	if value {
		v.Set(name, "true")
	}
}

func setInt(v url.Values, name string, value int) {
	if value > 0 {
		v.Set(name, strconv.Itoa(value))
	}
}

// SkillFilter is the closed set of options for skill reads.
type SkillFilter struct {
	Category     domain.SkillCategory
	FeaturedOnly bool
}

func (f SkillFilter) Key() Key {
	v := url.Values{}
	setString(v, "category", string(f.Category))
	setBool(v, "featured", f.FeaturedOnly)
	return NewKey(domain.TableSkills, v)
}

func (f SkillFilter) Validate() error {
	if f.Category != "" && !f.Category.Valid() {
		return invalidFilter("category", string(f.Category))
	}
	return nil
}

type ExperienceFilter struct {
	EmploymentType domain.EmploymentType
	CurrentOnly    bool
}

func (f ExperienceFilter) Key() Key {
	v := url.Values{}
	setString(v, "employment_type", string(f.EmploymentType))
	setBool(v, "current", f.CurrentOnly)
	return NewKey(domain.TableExperience, v)
}

func (f ExperienceFilter) Validate() error {
	if f.EmploymentType != "" && !f.EmploymentType.Valid() {
		return invalidFilter("employment_type", string(f.EmploymentType))
	}
	return nil
}

type ProjectFilter struct {
	Category     domain.ProjectCategory
	Status       domain.ProjectStatus
	FeaturedOnly bool
	// Search matches title and short description, case-insensitively.
	Search string
	Limit  int
}

func (f ProjectFilter) normalized() ProjectFilter {
	f.Search = strings.TrimSpace(f.Search)
	return f
}

func (f ProjectFilter) Key() Key {
	f = f.normalized()
	v := url.Values{}
	setString(v, "category", string(f.Category))
	setString(v, "status", string(f.Status))
	setBool(v, "featured", f.FeaturedOnly)
	setString(v, "search", f.Search)
	setInt(v, "limit", f.Limit)
	return NewKey(domain.TableProjects, v)
}

func (f ProjectFilter) Validate() error {
	if f.Category != "" && !f.Category.Valid() {
		return invalidFilter("category", string(f.Category))
	}
	if f.Status != "" && !f.Status.Valid() {
		return invalidFilter("status", string(f.Status))
	}
	if f.Limit < 0 {
		return invalidFilter("limit", strconv.Itoa(f.Limit))
	}
	return nil
}

type SocialLinkFilter struct {
	IncludeInactive bool
}

func (f SocialLinkFilter) Key() Key {
	v := url.Values{}
	setBool(v, "all", f.IncludeInactive)
	return NewKey(domain.TableSocialLinks, v)
}

type MessageFilter struct {
	UnreadOnly bool
	Priority   domain.Priority
	Limit      int
}

func (f MessageFilter) Key() Key {
	v := url.Values{}
	setBool(v, "unread", f.UnreadOnly)
	setString(v, "priority", string(f.Priority))
	setInt(v, "limit", f.Limit)
	return NewKey(domain.TableContactMessages, v)
}

func (f MessageFilter) Validate() error {
	if f.Priority != "" && !f.Priority.Valid() {
		return invalidFilter("priority", string(f.Priority))
	}
	if f.Limit < 0 {
		return invalidFilter("limit", strconv.Itoa(f.Limit))
	}
	return nil
}

// Matches reports whether m belongs in a list read with f, ignoring Limit.
func (f MessageFilter) Matches(m domain.ContactMessage) bool {
	if f.UnreadOnly && m.IsRead {
		return false
	}
	if f.Priority != "" && m.Priority != f.Priority {
		return false
	}
	return true
}

// MessageFilterFromKey recovers the filter a messages entry was read with.
func MessageFilterFromKey(k Key) (MessageFilter, bool) {
	if k.Entity != domain.TableContactMessages {
		return MessageFilter{}, false
	}
	v := k.values()
	f := MessageFilter{
		UnreadOnly: v.Get("unread") == "true",
		Priority:   domain.Priority(v.Get("priority")),
	}
	if l := v.Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil {
			return MessageFilter{}, false
		}
		f.Limit = n
	}
	return f, true
}

func ProfileKey() Key {
	return Key{Entity: domain.TableProfile}
}
