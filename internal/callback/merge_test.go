package callback

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/oauthcallback/internal/tenancy"
)

func TestDecideMerge(t *testing.T) {
	cases := []struct {
		name            string
		strategy        tenancy.MergeStrategy
		email           string
		channelVerified bool
		noChannel       bool
		emailVerified   bool
		wantLinked      bool
		wantAuth        bool
		wantCode        string
		wantWouldWork   bool
	}{
		{name: "no email", strategy: tenancy.MergeLinkMethod, email: ""},
		{name: "no channel", strategy: tenancy.MergeLinkMethod, email: "a@x.io", noChannel: true, wantAuth: true},
		{name: "link verified", strategy: tenancy.MergeLinkMethod, email: "A@x.io ", channelVerified: true, emailVerified: true, wantLinked: true},
		{name: "link old unverified", strategy: tenancy.MergeLinkMethod, email: "a@x.io", emailVerified: true, wantCode: CodeContactChannelTaken, wantWouldWork: true},
		{name: "link new unverified", strategy: tenancy.MergeLinkMethod, email: "a@x.io", channelVerified: true, wantCode: CodeContactChannelTaken},
		{name: "raise error", strategy: tenancy.MergeRaiseError, email: "a@x.io", channelVerified: true, emailVerified: true, wantCode: CodeContactChannelTaken},
		{name: "allow duplicates", strategy: tenancy.MergeAllowDuplicates, email: "a@x.io", channelVerified: true, emailVerified: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			owner := h.createUser(false)
			if !tc.noChannel {
				h.authEmail(owner.ID, "a@x.io", tc.channelVerified)
			}
			tn := &tenancy.Tenancy{ID: testTenancy, AccountMergeStrategy: tc.strategy}

			got, err := decideMerge(context.Background(), h.store.ContactChannels(), tn, tc.email, tc.emailVerified)
			if tc.wantCode != "" {
				ce := requireCode(t, err, tc.wantCode)
				_, has := ce.Details["would_work_if_email_was_verified"]
				assert.Equal(t, tc.wantWouldWork, has)
				return
			}
			require.NoError(t, err)
			if tc.wantLinked {
				assert.Equal(t, owner.ID, got.LinkedUserID)
			} else {
				assert.Empty(t, got.LinkedUserID)
			}
			assert.Equal(t, tc.wantAuth, got.PrimaryEmailAuthEnabled)
		})
	}
}

func TestDecideMergeIgnoresChannelsNotUsedForAuth(t *testing.T) {
	h := newHarness(t)
	owner := h.createUser(false)
	_, err := h.store.ContactChannels().Create(context.Background(), repositoryChannel(owner.ID, "a@x.io", false))
	require.NoError(t, err)

	got, err := decideMerge(context.Background(), h.store.ContactChannels(), &tenancy.Tenancy{ID: testTenancy}, "a@x.io", true)
	require.NoError(t, err)
	assert.Empty(t, got.LinkedUserID)
	assert.True(t, got.PrimaryEmailAuthEnabled)
}
