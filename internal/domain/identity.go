package domain

// IdentityKind discriminates the authoritative identity of a portal session.
type IdentityKind string

const (
	IdentityRepresentative IdentityKind = "representative"
	IdentityAccessCode     IdentityKind = "access_code"
	IdentityAnonymous      IdentityKind = "anonymous"
)

// Identity is the tagged union of the three session identities. Exactly one
// branch is authoritative at a time: a signed-in representative always wins
// over a stored access code, and the zero value is anonymous.
type Identity struct {
	Representative *Representative
	Code           string
	CodeOwner      *CodeOwner
}

func (i Identity) Kind() IdentityKind {
	switch {
	case i.Representative != nil:
		return IdentityRepresentative
	case i.Code != "":
		return IdentityAccessCode
	default:
		return IdentityAnonymous
	}
}

// ActiveRepID is the single identifier deciding which content subtree the
// session may see. Representative identity takes precedence over a stored
// access code; an unresolved code yields an empty id until resolution.
func (i Identity) ActiveRepID() string {
	switch i.Kind() {
	case IdentityRepresentative:
		return i.Representative.ID
	case IdentityAccessCode:
		if i.CodeOwner != nil {
			return i.CodeOwner.RepID
		}
		return ""
	default:
		return ""
	}
}

func (i Identity) IsAuthenticated() bool { return i.Representative != nil }

func (i Identity) HasAccessCode() bool { return i.Code != "" }
