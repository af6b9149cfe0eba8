package huawei

import (
	"context"
	"testing"

	dnsModel "github.com/huaweicloud/huaweicloud-sdk-go-v3/services/dns/v2/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"acme-dns-manager/internal/provider"
)

type fakeClient struct {
	zones      []dnsModel.PublicZoneResp
	recordSets []dnsModel.ListRecordSets
	created    []*dnsModel.CreateRecordSetRequest
	updated    []*dnsModel.UpdateRecordSetRequest
}

func (f *fakeClient) ListPublicZones(*dnsModel.ListPublicZonesRequest) (*dnsModel.ListPublicZonesResponse, error) {
	return &dnsModel.ListPublicZonesResponse{Zones: &f.zones}, nil
}

func (f *fakeClient) ListRecordSetsByZone(*dnsModel.ListRecordSetsByZoneRequest) (*dnsModel.ListRecordSetsByZoneResponse, error) {
	return &dnsModel.ListRecordSetsByZoneResponse{Recordsets: &f.recordSets}, nil
}

func (f *fakeClient) CreateRecordSet(req *dnsModel.CreateRecordSetRequest) (*dnsModel.CreateRecordSetResponse, error) {
	f.created = append(f.created, req)
	return &dnsModel.CreateRecordSetResponse{}, nil
}

func (f *fakeClient) UpdateRecordSet(req *dnsModel.UpdateRecordSetRequest) (*dnsModel.UpdateRecordSetResponse, error) {
	f.updated = append(f.updated, req)
	return &dnsModel.UpdateRecordSetResponse{}, nil
}

func ptr[T any](v T) *T { return &v }

func TestListZones(t *testing.T) {
	client := &fakeClient{zones: []dnsModel.PublicZoneResp{
		{Id: ptr("zone-1"), Name: ptr("example.cn.")},
	}}
	zones, err := NewWithClient(client, nil).ListZones(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []provider.Zone{{Name: "example.cn", Provider: provider.Huawei, ID: "zone-1"}}, zones)
}

func TestPublishTXT(t *testing.T) {
	zone := provider.Zone{Name: "example.cn", Provider: provider.Huawei, ID: "zone-1"}

	t.Run("新建记录集时值带引号", func(t *testing.T) {
		client := &fakeClient{}
		_, err := NewWithClient(client, nil).PublishTXT(context.Background(), zone, "_acme-challenge.www.example.cn", "token")
		require.NoError(t, err)

		require.Len(t, client.created, 1)
		body := client.created[0].Body
		assert.Equal(t, "zone-1", client.created[0].ZoneId)
		assert.Equal(t, "_acme-challenge.www.example.cn.", body.Name)
		assert.Equal(t, []string{`"token"`}, body.Records)
	})

	t.Run("已有记录集时更新", func(t *testing.T) {
		client := &fakeClient{recordSets: []dnsModel.ListRecordSets{
			{Id: ptr("rs-1"), Name: ptr("_acme-challenge.www.example.cn."), Type: ptr("TXT")},
		}}
		_, err := NewWithClient(client, nil).PublishTXT(context.Background(), zone, "_acme-challenge.www.example.cn", "token")
		require.NoError(t, err)

		require.Len(t, client.updated, 1)
		assert.Equal(t, "rs-1", client.updated[0].RecordsetId)
		assert.Empty(t, client.created)
	})
}
