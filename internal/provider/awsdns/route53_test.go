package awsdns

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/route53"
	"github.com/aws/aws-sdk-go-v2/service/route53/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "acme-dns-manager/internal/errors"
	"acme-dns-manager/internal/provider"
)

type fakeRoute53 struct {
	pages   []*route53.ListHostedZonesOutput
	calls   int
	changes []*route53.ChangeResourceRecordSetsInput
	change  *types.ChangeInfo
	status  types.ChangeStatus
	err     error
}

func (f *fakeRoute53) ListHostedZones(context.Context, *route53.ListHostedZonesInput, ...func(*route53.Options)) (*route53.ListHostedZonesOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.calls++
	return f.pages[f.calls-1], nil
}

func (f *fakeRoute53) ChangeResourceRecordSets(_ context.Context, in *route53.ChangeResourceRecordSetsInput, _ ...func(*route53.Options)) (*route53.ChangeResourceRecordSetsOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.changes = append(f.changes, in)
	return &route53.ChangeResourceRecordSetsOutput{ChangeInfo: f.change}, nil
}

func (f *fakeRoute53) GetChange(_ context.Context, in *route53.GetChangeInput, _ ...func(*route53.Options)) (*route53.GetChangeOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &route53.GetChangeOutput{ChangeInfo: &types.ChangeInfo{Id: in.Id, Status: f.status}}, nil
}

func TestRoute53ListZones(t *testing.T) {
	client := &fakeRoute53{pages: []*route53.ListHostedZonesOutput{
		{
			HostedZones: []types.HostedZone{
				{Id: aws.String("/hostedzone/ZPUBLIC"), Name: aws.String("Example.com.")},
				{Id: aws.String("/hostedzone/ZPRIVATE"), Name: aws.String("internal.example.com."), Config: &types.HostedZoneConfig{PrivateZone: true}},
			},
			IsTruncated: true,
			NextMarker:  aws.String("page2"),
		},
		{
			HostedZones: []types.HostedZone{
				{Id: aws.String("/hostedzone/ZSTAGING"), Name: aws.String("staging.example.com.")},
			},
		},
	}}

	zones, err := NewRoute53WithClient(client, nil).ListZones(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []provider.Zone{
		{Name: "example.com", Provider: provider.Route53, ID: "ZPUBLIC"},
		{Name: "staging.example.com", Provider: provider.Route53, ID: "ZSTAGING"},
	}, zones)
	assert.Equal(t, 2, client.calls)
}

func TestRoute53PublishTXT(t *testing.T) {
	zone := provider.Zone{Name: "example.com", Provider: provider.Route53, ID: "Z123"}

	t.Run("UPSERT带引号的TXT记录并跟踪变更", func(t *testing.T) {
		client := &fakeRoute53{change: &types.ChangeInfo{Id: aws.String("/change/C1"), Status: types.ChangeStatusPending}}
		backend := NewRoute53WithClient(client, nil)

		wait, err := backend.PublishTXT(context.Background(), zone, "_acme-challenge.www.example.com", "token")
		require.NoError(t, err)

		assert.Equal(t, provider.WaitTrackChange, wait.Kind)
		assert.Equal(t, "/change/C1", wait.ChangeID)
		assert.Same(t, backend, wait.Tracker)

		require.Len(t, client.changes, 1)
		in := client.changes[0]
		assert.Equal(t, "Z123", aws.ToString(in.HostedZoneId))
		require.Len(t, in.ChangeBatch.Changes, 1)
		change := in.ChangeBatch.Changes[0]
		assert.Equal(t, types.ChangeActionUpsert, change.Action)
		assert.Equal(t, types.RRTypeTxt, change.ResourceRecordSet.Type)
		assert.Equal(t, int64(60), aws.ToInt64(change.ResourceRecordSet.TTL))
		assert.Equal(t, "_acme-challenge.www.example.com", aws.ToString(change.ResourceRecordSet.Name))
		require.Len(t, change.ResourceRecordSet.ResourceRecords, 1)
		assert.Equal(t, `"token"`, aws.ToString(change.ResourceRecordSet.ResourceRecords[0].Value))
	})

	t.Run("没有变更ID时固定等待", func(t *testing.T) {
		client := &fakeRoute53{}
		wait, err := NewRoute53WithClient(client, nil).PublishTXT(context.Background(), zone, "_acme-challenge.www.example.com", "token")
		require.NoError(t, err)
		assert.Equal(t, provider.ConstantDelay(50*time.Second), wait)
	})

	t.Run("托管区域不存在归为配置错误", func(t *testing.T) {
		client := &fakeRoute53{err: &smithy.GenericAPIError{Code: "NoSuchHostedZone", Message: "no zone"}}
		_, err := NewRoute53WithClient(client, nil).PublishTXT(context.Background(), zone, "_acme-challenge.www.example.com", "token")
		assert.ErrorIs(t, err, apperrors.ErrNoDNSZone)
		assert.True(t, apperrors.IsConfig(err))
	})
}

func TestRoute53ChangeInSync(t *testing.T) {
	client := &fakeRoute53{status: types.ChangeStatusPending}
	backend := NewRoute53WithClient(client, nil)

	ok, err := backend.ChangeInSync(context.Background(), "/change/C1")
	require.NoError(t, err)
	assert.False(t, ok)

	client.status = types.ChangeStatusInsync
	ok, err = backend.ChangeInSync(context.Background(), "/change/C1")
	require.NoError(t, err)
	assert.True(t, ok)
}
