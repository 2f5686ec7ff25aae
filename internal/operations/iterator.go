// Copyright 2025 Joseph Cumines

package operations

import (
	"context"
	"iter"
	"math"

	longrunningpb "cloud.google.com/go/longrunning/autogen/longrunningpb"
	gax "github.com/googleapis/gax-go/v2"
	"google.golang.org/api/iterator"
	"google.golang.org/protobuf/proto"

	"github.com/joeycumines/lro-client/internal/dispatch"
)

// OperationIterator is a lazily fetched sequence of operations. The first
// page is the response of the ListOperations call that created it; further
// pages are dispatched on demand with the previous page's next_page_token.
//
// An OperationIterator is not safe for concurrent use; independent
// iterators are.
type OperationIterator struct {
	items    []*longrunningpb.Operation
	pageInfo *iterator.PageInfo
	nextFunc func() error

	response *longrunningpb.ListOperationsResponse
	handle   *dispatch.CallHandle

	// seed is the already-fetched first page, consumed by the first fetch
	// for seedToken.
	seed      *longrunningpb.ListOperationsResponse
	seedToken string

	ctx     context.Context
	client  *Client
	request *longrunningpb.ListOperationsRequest
	opts    []gax.CallOption
}

func newOperationIterator(ctx context.Context, c *Client, req *longrunningpb.ListOperationsRequest, opts []gax.CallOption, first *longrunningpb.ListOperationsResponse, handle *dispatch.CallHandle) *OperationIterator {
	it := &OperationIterator{
		response:  first,
		handle:    handle,
		seed:      first,
		seedToken: req.GetPageToken(),
		ctx:       ctx,
		client:    c,
		// template for continuation pages, detached from the caller's request
		request: proto.Clone(req).(*longrunningpb.ListOperationsRequest),
		opts:    opts,
	}
	it.pageInfo, it.nextFunc = iterator.NewPageInfo(it.fetch, it.bufLen, it.takeBuf)
	it.pageInfo.MaxSize = int(req.GetPageSize())
	it.pageInfo.Token = req.GetPageToken()
	return it
}

// PageInfo supports pagination. See the google.golang.org/api/iterator
// package for details.
func (it *OperationIterator) PageInfo() *iterator.PageInfo { return it.pageInfo }

// Response is the raw response of the most recently fetched page.
func (it *OperationIterator) Response() *longrunningpb.ListOperationsResponse { return it.response }

// CallHandle is the handle of the call that fetched the most recent page.
func (it *OperationIterator) CallHandle() *dispatch.CallHandle { return it.handle }

// Next returns the next operation. Its second return value is
// iterator.Done if there are no more results. Once Next returns Done, all
// subsequent calls will return Done.
func (it *OperationIterator) Next() (*longrunningpb.Operation, error) {
	if err := it.nextFunc(); err != nil {
		return nil, err
	}
	item := it.items[0]
	it.items = it.items[1:]
	return item, nil
}

// All returns an iterator over the remaining operations. It stops after the
// first error, which is yielded.
func (it *OperationIterator) All() iter.Seq2[*longrunningpb.Operation, error] {
	return func(yield func(*longrunningpb.Operation, error) bool) {
		for {
			op, err := it.Next()
			if err == iterator.Done {
				return
			}
			if !yield(op, err) || err != nil {
				return
			}
		}
	}
}

func (it *OperationIterator) bufLen() int { return len(it.items) }

func (it *OperationIterator) takeBuf() any {
	b := it.items
	it.items = nil
	return b
}

func (it *OperationIterator) fetch(pageSize int, pageToken string) (string, error) {
	var resp *longrunningpb.ListOperationsResponse
	if it.seed != nil && pageToken == it.seedToken {
		resp = it.seed
		it.seed = nil
	} else {
		it.seed = nil
		// each page gets its own request; dispatched requests are never modified
		req := proto.Clone(it.request).(*longrunningpb.ListOperationsRequest)
		req.PageToken = pageToken
		if pageSize > math.MaxInt32 {
			req.PageSize = math.MaxInt32
		} else if pageSize != 0 {
			req.PageSize = int32(pageSize)
		}

		raw, handle, err := it.client.dispatcher.Dispatch(it.ctx, listMethod, req, it.opts)
		if err != nil {
			return "", err
		}
		resp = raw.(*longrunningpb.ListOperationsResponse)
		it.response = resp
		it.handle = handle
	}
	it.items = append(it.items, resp.GetOperations()...)
	return resp.GetNextPageToken(), nil
}
