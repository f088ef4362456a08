// Package repofakes holds an in-memory backend for auth flow tests.
package repofakes

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/notify-gov/admin-portal/auth"
	"github.com/notify-gov/admin-portal/invites"
	"github.com/notify-gov/admin-portal/notifyapi"
	"github.com/notify-gov/admin-portal/users"
)

var _ auth.API = (*FakeAPI)(nil)

// FakeAPI is a stateful in-memory stand-in for the backend client.
type FakeAPI struct {
	lock sync.Mutex

	Users          map[string]*users.User
	ServiceInvites map[string]*invites.InvitedUser    // keyed by email
	OrgInvites     map[string]*invites.InvitedOrgUser // keyed by email

	// SentEmails and SentCodes record outbound verification traffic.
	SentEmails []string
	SentCodes  []string

	// AcceptedCodes lists verify codes CheckVerifyCode treats as valid.
	AcceptedCodes map[string]bool

	// ServiceMembers records AddUserToService calls as serviceID -> userIDs.
	ServiceMembers map[string][]string
	OrgMembers     map[string][]string

	// AlreadyMemberOf makes AddUserToService answer the backend's
	// "already part of service" 400 for the given service id.
	AlreadyMemberOf string
}

// NewFakeAPI returns an empty backend.
func NewFakeAPI() *FakeAPI {
	return &FakeAPI{
		Users:          make(map[string]*users.User),
		ServiceInvites: make(map[string]*invites.InvitedUser),
		OrgInvites:     make(map[string]*invites.InvitedOrgUser),
		AcceptedCodes:  make(map[string]bool),
		ServiceMembers: make(map[string][]string),
		OrgMembers:     make(map[string][]string),
	}
}

func notFound(url string) error {
	return &notifyapi.APIError{StatusCode: http.StatusNotFound, Message: "not found", URL: url}
}

func (f *FakeAPI) GetUser(_ context.Context, userID string) (*users.User, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	user, ok := f.Users[userID]
	if !ok {
		return nil, notFound("/user/" + userID)
	}
	copied := *user
	return &copied, nil
}

func (f *FakeAPI) GetUserByEmail(_ context.Context, email string) (*users.User, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	for _, user := range f.Users {
		if user.Email == email {
			copied := *user
			return &copied, nil
		}
	}
	return nil, notFound("/user/email")
}

func (f *FakeAPI) GetUserByUUIDAndEmail(ctx context.Context, _ string, email string) (*users.User, error) {
	return f.GetUserByEmail(ctx, email)
}

func (f *FakeAPI) ActivateUser(_ context.Context, userID string) (*users.User, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	user, ok := f.Users[userID]
	if !ok {
		return nil, notFound("/user/" + userID + "/activate")
	}
	user.State = users.StateActive
	copied := *user
	return &copied, nil
}

func (f *FakeAPI) SetEmailAccessValidatedAt(_ context.Context, userID string, at time.Time) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	user, ok := f.Users[userID]
	if !ok {
		return notFound("/user/" + userID)
	}
	user.EmailAccessValidatedAt = at
	return nil
}

func (f *FakeAPI) UpdateCurrentSessionID(_ context.Context, userID, sessionID string) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	user, ok := f.Users[userID]
	if !ok {
		return notFound("/user/" + userID)
	}
	user.CurrentSessionID = sessionID
	return nil
}

func (f *FakeAPI) ClearCurrentSessionID(ctx context.Context, userID string) error {
	return f.UpdateCurrentSessionID(ctx, userID, "")
}

func (f *FakeAPI) SendVerifyCode(_ context.Context, userID, codeType, _ string) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.SentCodes = append(f.SentCodes, userID+":"+codeType)
	return nil
}

func (f *FakeAPI) CheckVerifyCode(_ context.Context, _, code, _ string) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	if !f.AcceptedCodes[code] {
		return &notifyapi.APIError{StatusCode: http.StatusBadRequest, Message: "Code not found"}
	}
	return nil
}

func (f *FakeAPI) SendVerificationEmail(_ context.Context, _, email, _ string) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.SentEmails = append(f.SentEmails, email)
	return nil
}

func (f *FakeAPI) GetInvitedUserByEmail(_ context.Context, email string) (*invites.InvitedUser, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	invite, ok := f.ServiceInvites[email]
	if !ok {
		return nil, notFound("/invite/service/by-email")
	}
	copied := *invite
	return &copied, nil
}

func (f *FakeAPI) GetInvitedOrgUserByEmail(_ context.Context, email string) (*invites.InvitedOrgUser, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	invite, ok := f.OrgInvites[email]
	if !ok {
		return nil, notFound("/invite/organization/by-email")
	}
	copied := *invite
	return &copied, nil
}

func (f *FakeAPI) AddUserToService(_ context.Context, serviceID, userID string, _, _ []string) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	if serviceID == f.AlreadyMemberOf {
		return &notifyapi.APIError{StatusCode: http.StatusBadRequest, Message: "User already part of service"}
	}
	f.ServiceMembers[serviceID] = append(f.ServiceMembers[serviceID], userID)
	if user, ok := f.Users[userID]; ok {
		user.ServiceIDs = append(user.ServiceIDs, serviceID)
	}
	return nil
}

func (f *FakeAPI) AddUserToOrganization(_ context.Context, organizationID, userID string) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.OrgMembers[organizationID] = append(f.OrgMembers[organizationID], userID)
	if user, ok := f.Users[userID]; ok {
		user.OrganizationIDs = append(user.OrganizationIDs, organizationID)
	}
	return nil
}

func (f *FakeAPI) AcceptInvite(_ context.Context, _, inviteID string) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	for _, invite := range f.ServiceInvites {
		if invite.ID == inviteID {
			invite.Status = invites.StatusAccepted
		}
	}
	return nil
}

func (f *FakeAPI) UpdateOrgInviteStatus(_ context.Context, _, inviteID, status string) (*invites.InvitedOrgUser, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	for _, invite := range f.OrgInvites {
		if invite.ID == inviteID {
			invite.Status = status
			copied := *invite
			return &copied, nil
		}
	}
	return nil, notFound("/invite/organization/" + inviteID)
}
