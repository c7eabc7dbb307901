package dynamodb

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// fakeDDB is an in-memory table that understands the expressions Store issues.
type fakeDDB struct {
	mu    sync.Mutex
	items map[string]map[string]map[string]ddbtypes.AttributeValue
	// failTransact, when set, is returned by the next TransactWriteItems call.
	failTransact error
	transacts    int
}

func newFakeDDB() *fakeDDB {
	return &fakeDDB{items: make(map[string]map[string]map[string]ddbtypes.AttributeValue)}
}

func str(av ddbtypes.AttributeValue) string {
	if s, ok := av.(*ddbtypes.AttributeValueMemberS); ok {
		return s.Value
	}
	return ""
}

func (f *fakeDDB) get(pk, sk string) map[string]ddbtypes.AttributeValue {
	return f.items[pk][sk]
}

func (f *fakeDDB) put(item map[string]ddbtypes.AttributeValue) {
	pk, sk := str(item["PK"]), str(item["SK"])
	if f.items[pk] == nil {
		f.items[pk] = make(map[string]map[string]ddbtypes.AttributeValue)
	}
	f.items[pk][sk] = item
}

func (f *fakeDDB) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.put(in.Item)
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDDB) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &dynamodb.GetItemOutput{Item: f.get(str(in.Key["PK"]), str(in.Key["SK"]))}, nil
}

func (f *fakeDDB) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	vals := in.ExpressionAttributeValues
	pk := str(vals[":pk"])
	keep := func(sk string) bool { return strings.HasPrefix(sk, str(vals[":prefix"])) }
	if strings.Contains(aws.ToString(in.KeyConditionExpression), "BETWEEN") {
		lo, hi := str(vals[":lo"]), str(vals[":hi"])
		keep = func(sk string) bool { return sk >= lo && sk <= hi }
	}

	var sks []string
	for sk := range f.items[pk] {
		if keep(sk) {
			sks = append(sks, sk)
		}
	}
	sort.Strings(sks)
	if in.ScanIndexForward != nil && !*in.ScanIndexForward {
		sort.Sort(sort.Reverse(sort.StringSlice(sks)))
	}
	if in.Limit != nil && int(*in.Limit) < len(sks) {
		sks = sks[:*in.Limit]
	}
	out := &dynamodb.QueryOutput{}
	for _, sk := range sks {
		out.Items = append(out.Items, f.items[pk][sk])
	}
	return out, nil
}

func (f *fakeDDB) TransactWriteItems(_ context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transacts++
	if f.failTransact != nil {
		err := f.failTransact
		f.failTransact = nil
		return nil, err
	}
	cancelled := func() error {
		return &ddbtypes.TransactionCanceledException{
			CancellationReasons: []ddbtypes.CancellationReason{{Code: aws.String("ConditionalCheckFailed")}},
		}
	}
	for _, ti := range in.TransactItems {
		if u := ti.Update; u != nil {
			cur := f.get(str(u.Key["PK"]), str(u.Key["SK"]))
			latest, has := cur["latest"]
			switch aws.ToString(u.ConditionExpression) {
			case "attribute_not_exists(latest)":
				if has {
					return nil, cancelled()
				}
			case "latest = :prev":
				if !has || str(latest) != str(u.ExpressionAttributeValues[":prev"]) {
					return nil, cancelled()
				}
			}
		}
		if p := ti.Put; p != nil && f.get(str(p.Item["PK"]), str(p.Item["SK"])) != nil {
			return nil, cancelled()
		}
	}
	for _, ti := range in.TransactItems {
		if u := ti.Update; u != nil {
			f.put(map[string]ddbtypes.AttributeValue{
				"PK": u.Key["PK"], "SK": u.Key["SK"], "latest": u.ExpressionAttributeValues[":new"],
			})
		}
		if p := ti.Put; p != nil {
			f.put(p.Item)
		}
	}
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

func (f *fakeDDB) DescribeTable(_ context.Context, _ *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	return &dynamodb.DescribeTableOutput{}, nil
}

func (f *fakeDDB) CreateTable(_ context.Context, _ *dynamodb.CreateTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	return nil, &ddbtypes.ResourceInUseException{}
}

type conditionErr = ddbtypes.ConditionalCheckFailedException
