package mongo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/robertarktes/nft-ticket-protocol/internal/observability"
	"github.com/robertarktes/nft-ticket-protocol/internal/settlement"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type AuditLogger struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewAuditLogger(db *mongo.Database, logger observability.Logger) *AuditLogger {
	return &AuditLogger{
		coll:   db.Collection("audit_logs"),
		logger: logger,
	}
}

type PaymentDoc struct {
	Payee  string `bson:"payee"`
	Role   string `bson:"role"`
	Amount int64  `bson:"amount"`
}

type AuditLog struct {
	ID          string       `bson:"_id"`
	TxHash      string       `bson:"tx_hash"`
	Type        string       `bson:"type"`
	Action      string       `bson:"action"`
	PolicyID    string       `bson:"policy_id"`
	AssetName   string       `bson:"asset_name"`
	Signer      string       `bson:"signer"`
	Owner       string       `bson:"owner"`
	Listed      bool         `bson:"listed"`
	Used        bool         `bson:"used"`
	ResalePrice int64        `bson:"resale_price"`
	Payments    []PaymentDoc `bson:"payments"`
	CommittedAt time.Time    `bson:"committed_at"`
	RecordedAt  time.Time    `bson:"recorded_at"`
}

// LogTransition stores e once; redelivered messages with the same tx hash are ignored.
func (a *AuditLogger) LogTransition(ctx context.Context, e settlement.Event) error {
	payments := make([]PaymentDoc, 0, len(e.Payments))
	for _, p := range e.Payments {
		payments = append(payments, PaymentDoc{Payee: p.Payee, Role: string(p.Role), Amount: int64(p.Amount)})
	}
	doc := AuditLog{
		ID:          uuid.NewSHA1(uuid.NameSpaceOID, []byte(e.TxHash)).String(),
		TxHash:      e.TxHash,
		Type:        e.Type,
		Action:      e.Action,
		PolicyID:    e.Asset.PolicyID,
		AssetName:   e.Asset.AssetName,
		Signer:      e.Signer,
		Owner:       e.Datum.CurrentOwner,
		Listed:      e.Datum.IsListed,
		Used:        e.Datum.IsUsed,
		ResalePrice: int64(e.Datum.ResalePrice),
		Payments:    payments,
		CommittedAt: e.CommittedAt,
		RecordedAt:  time.Now().UTC(),
	}
	_, err := a.coll.InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		return nil
	}
	if err != nil {
		a.logger.WithError(err).WithField("tx_hash", e.TxHash).Error("failed to insert audit log")
		return err
	}
	return nil
}

func (a *AuditLogger) ListByAsset(ctx context.Context, policyID, assetName string) ([]AuditLog, error) {
	cur, err := a.coll.Find(ctx,
		bson.M{"policy_id": policyID, "asset_name": assetName},
		options.Find().SetSort(bson.D{{Key: "committed_at", Value: 1}}),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var logs []AuditLog
	if err := cur.All(ctx, &logs); err != nil {
		return nil, err
	}
	return logs, nil
}
