// Package repofakes holds an in-memory backend for redemption tests.
package repofakes

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/notify-gov/admin-portal/invites"
	"github.com/notify-gov/admin-portal/invites/redemption"
	"github.com/notify-gov/admin-portal/notifyapi"
	"github.com/notify-gov/admin-portal/services"
	"github.com/notify-gov/admin-portal/users"
)

var _ redemption.API = (*FakeAPI)(nil)

// FakeAPI is a stateful in-memory stand-in for the backend client.
type FakeAPI struct {
	lock sync.Mutex

	Users      map[string]*users.User             // keyed by id
	Invites    map[string]*invites.InvitedUser    // keyed by token
	OrgInvites map[string]*invites.InvitedOrgUser // keyed by token
	Services   map[string]*services.Service

	ServiceMembers map[string][]string
	OrgMembers     map[string][]string

	// AlreadyMemberOf makes AddUserToService answer "already part of
	// service" for the given service id.
	AlreadyMemberOf string

	// UserUpdates records the field maps passed to UpdateUser.
	UserUpdates []map[string]any
}

// NewFakeAPI returns an empty backend.
func NewFakeAPI() *FakeAPI {
	return &FakeAPI{
		Users:          make(map[string]*users.User),
		Invites:        make(map[string]*invites.InvitedUser),
		OrgInvites:     make(map[string]*invites.InvitedOrgUser),
		Services:       make(map[string]*services.Service),
		ServiceMembers: make(map[string][]string),
		OrgMembers:     make(map[string][]string),
	}
}

func notFound(url string) error {
	return &notifyapi.APIError{StatusCode: http.StatusNotFound, Message: "not found", URL: url}
}

func (f *FakeAPI) CheckInviteToken(_ context.Context, inviteToken string) (*invites.InvitedUser, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	invite, ok := f.Invites[inviteToken]
	if !ok {
		return nil, notFound("/invite/service/check/" + inviteToken)
	}
	copied := *invite
	return &copied, nil
}

func (f *FakeAPI) CheckOrgInviteToken(_ context.Context, inviteToken string) (*invites.InvitedOrgUser, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	invite, ok := f.OrgInvites[inviteToken]
	if !ok {
		return nil, notFound("/invite/organization/check/" + inviteToken)
	}
	copied := *invite
	return &copied, nil
}

func (f *FakeAPI) GetInvitedUser(_ context.Context, inviteID string) (*invites.InvitedUser, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	for _, invite := range f.Invites {
		if invite.ID == inviteID {
			copied := *invite
			return &copied, nil
		}
	}
	return nil, notFound("/invite/service/" + inviteID)
}

func (f *FakeAPI) GetInvitedOrgUser(_ context.Context, inviteID string) (*invites.InvitedOrgUser, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	for _, invite := range f.OrgInvites {
		if invite.ID == inviteID {
			copied := *invite
			return &copied, nil
		}
	}
	return nil, notFound("/invite/organization/" + inviteID)
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

func (f *FakeAPI) CreateUser(_ context.Context, fields map[string]any) (*users.User, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	user := &users.User{
		ID:    uuid.New().String(),
		State: users.StatePending,
	}
	if name, ok := fields["name"].(string); ok {
		user.Name = name
	}
	if email, ok := fields["email_address"].(string); ok {
		user.Email = email
	}
	if mobile, ok := fields["mobile_number"].(string); ok {
		user.MobileNumber = mobile
	}
	if authType, ok := fields["auth_type"].(string); ok {
		user.AuthType = users.AuthType(authType)
	}
	f.Users[user.ID] = user
	copied := *user
	return &copied, nil
}

func (f *FakeAPI) UpdateUser(_ context.Context, userID string, fields map[string]any) (*users.User, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	user, ok := f.Users[userID]
	if !ok {
		return nil, notFound("/user/" + userID)
	}
	f.UserUpdates = append(f.UserUpdates, fields)
	if name, ok := fields["name"].(string); ok {
		user.Name = name
	}
	if mobile, ok := fields["mobile_number"].(string); ok {
		user.MobileNumber = mobile
	}
	if authType, ok := fields["auth_type"].(string); ok {
		user.AuthType = users.AuthType(authType)
	}
	copied := *user
	return &copied, nil
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

func (f *FakeAPI) GetService(_ context.Context, serviceID string) (*services.Service, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	service, ok := f.Services[serviceID]
	if !ok {
		return nil, notFound("/service/" + serviceID)
	}
	copied := *service
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
	for _, invite := range f.Invites {
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
