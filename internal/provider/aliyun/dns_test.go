package aliyun

import (
	"context"
	"testing"
	"time"

	alidns "github.com/alibabacloud-go/alidns-20150109/v4/client"
	"github.com/alibabacloud-go/tea/tea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"acme-dns-manager/internal/provider"
)

type fakeClient struct {
	domains []string
	records []*alidns.DescribeDomainRecordsResponseBodyDomainRecordsRecord
	added   []*alidns.AddDomainRecordRequest
	updated []*alidns.UpdateDomainRecordRequest
}

func (f *fakeClient) DescribeDomains(req *alidns.DescribeDomainsRequest) (*alidns.DescribeDomainsResponse, error) {
	var list []*alidns.DescribeDomainsResponseBodyDomainsDomain
	for _, name := range f.domains {
		list = append(list, &alidns.DescribeDomainsResponseBodyDomainsDomain{DomainName: tea.String(name), DomainId: tea.String("id-" + name)})
	}
	return &alidns.DescribeDomainsResponse{Body: &alidns.DescribeDomainsResponseBody{
		Domains:    &alidns.DescribeDomainsResponseBodyDomains{Domain: list},
		TotalCount: tea.Int64(int64(len(list))),
	}}, nil
}

func (f *fakeClient) DescribeDomainRecords(*alidns.DescribeDomainRecordsRequest) (*alidns.DescribeDomainRecordsResponse, error) {
	return &alidns.DescribeDomainRecordsResponse{Body: &alidns.DescribeDomainRecordsResponseBody{
		DomainRecords: &alidns.DescribeDomainRecordsResponseBodyDomainRecords{Record: f.records},
	}}, nil
}

func (f *fakeClient) AddDomainRecord(req *alidns.AddDomainRecordRequest) (*alidns.AddDomainRecordResponse, error) {
	f.added = append(f.added, req)
	return &alidns.AddDomainRecordResponse{}, nil
}

func (f *fakeClient) UpdateDomainRecord(req *alidns.UpdateDomainRecordRequest) (*alidns.UpdateDomainRecordResponse, error) {
	f.updated = append(f.updated, req)
	return &alidns.UpdateDomainRecordResponse{}, nil
}

func TestListZones(t *testing.T) {
	client := &fakeClient{domains: []string{"Example.CN", "example.com.cn"}}
	zones, err := NewWithClient(client, nil).ListZones(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []provider.Zone{
		{Name: "example.cn", Provider: provider.Aliyun, ID: "id-Example.CN"},
		{Name: "example.com.cn", Provider: provider.Aliyun, ID: "id-example.com.cn"},
	}, zones)
}

func TestPublishTXT(t *testing.T) {
	zone := provider.Zone{Name: "example.com.cn", Provider: provider.Aliyun}

	t.Run("记录不存在时添加", func(t *testing.T) {
		client := &fakeClient{records: []*alidns.DescribeDomainRecordsResponseBodyDomainRecordsRecord{
			{RR: tea.String("_acme-challenge.www.api"), Type: tea.String("TXT"), RecordId: tea.String("9")},
		}}
		wait, err := NewWithClient(client, nil).PublishTXT(context.Background(), zone, "_acme-challenge.www.example.com.cn", "token")
		require.NoError(t, err)

		assert.Equal(t, provider.ConstantDelay(20*time.Second), wait)
		require.Len(t, client.added, 1)
		assert.Equal(t, "_acme-challenge.www", tea.StringValue(client.added[0].RR))
		assert.Equal(t, "example.com.cn", tea.StringValue(client.added[0].DomainName))
		assert.Empty(t, client.updated)
	})

	t.Run("记录存在时更新", func(t *testing.T) {
		client := &fakeClient{records: []*alidns.DescribeDomainRecordsResponseBodyDomainRecordsRecord{
			{RR: tea.String("_acme-challenge.www"), Type: tea.String("TXT"), RecordId: tea.String("7")},
		}}
		_, err := NewWithClient(client, nil).PublishTXT(context.Background(), zone, "_acme-challenge.www.example.com.cn", "token")
		require.NoError(t, err)

		require.Len(t, client.updated, 1)
		assert.Equal(t, "7", tea.StringValue(client.updated[0].RecordId))
		assert.Equal(t, "token", tea.StringValue(client.updated[0].Value))
		assert.Empty(t, client.added)
	})
}
