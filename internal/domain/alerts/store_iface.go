package alerts

import "context"

type StoreAPI interface {
	Create(ctx context.Context, candidate Candidate) (Alert, error)
	ListUnread(ctx context.Context, filter Filter) ([]Alert, error)
	MarkRead(ctx context.Context, id string) error
	DismissByKey(ctx context.Context, recordType, recordKey string) (int64, error)
}
