package progressstore

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"os"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"finverseAPI/internal/types/progression"
)

const progressCollection = "user_progress"

// FirestoreStore backs Store with a Firestore collection, one document
// per user keyed by user id.
type FirestoreStore struct {
	client *firestore.Client
}

// NewFirestoreStore initializes the Firestore client. It first attempts to
// use credentials from the FIREBASE_SERVICE_ACCOUNT_JSON environment
// variable (Base64 encoded). If that's not found, it falls back to a local
// service account key file.
func NewFirestoreStore(ctx context.Context, localFilePath string) (*FirestoreStore, error) {
	var opt option.ClientOption

	encodedCreds := os.Getenv("FIREBASE_SERVICE_ACCOUNT_JSON")
	if encodedCreds != "" {
		decoded, err := base64.StdEncoding.DecodeString(encodedCreds)
		if err != nil {
			return nil, fmt.Errorf("failed to decode base64 firebase credentials from FIREBASE_SERVICE_ACCOUNT_JSON: %v", err)
		}
		opt = option.WithCredentialsJSON(decoded)
		log.Println("Progress Store: Initializing from FIREBASE_SERVICE_ACCOUNT_JSON environment variable.")
	} else {
		if _, err := os.Stat(localFilePath); os.IsNotExist(err) {
			return nil, fmt.Errorf("local firebase file not found: %s, and FIREBASE_SERVICE_ACCOUNT_JSON environment variable is not set", localFilePath)
		}
		opt = option.WithCredentialsFile(localFilePath)
		log.Printf("Progress Store: Initializing from local file: %s.", localFilePath)
	}

	app, err := firebase.NewApp(ctx, nil, opt)
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase app: %v", err)
	}

	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting firestore client: %v", err)
	}

	return &FirestoreStore{client: client}, nil
}

func (s *FirestoreStore) doc(userID string) *firestore.DocumentRef {
	return s.client.Collection(progressCollection).Doc(userID)
}

func (s *FirestoreStore) Get(ctx context.Context, userID string) (*progression.UserProgress, error) {
	snap, err := s.doc(userID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get progress: %w", err)
	}

	p := &progression.UserProgress{}
	if err := snap.DataTo(p); err != nil {
		return nil, fmt.Errorf("decode progress: %w", err)
	}
	return p, nil
}

func (s *FirestoreStore) Set(ctx context.Context, userID string, doc *progression.UserProgress, merge bool) error {
	var err error
	if merge {
		_, err = s.doc(userID).Set(ctx, doc, firestore.MergeAll)
	} else {
		_, err = s.doc(userID).Set(ctx, doc)
	}
	if err != nil {
		return fmt.Errorf("set progress: %w", err)
	}
	return nil
}

func (s *FirestoreStore) Update(ctx context.Context, userID string, fields map[string]any) error {
	updates := make([]firestore.Update, 0, len(fields))
	for path, value := range fields {
		updates = append(updates, firestore.Update{Path: path, Value: value})
	}

	if _, err := s.doc(userID).Update(ctx, updates); err != nil {
		if status.Code(err) == codes.NotFound {
			return ErrNotFound
		}
		return fmt.Errorf("update progress: %w", err)
	}
	return nil
}

func (s *FirestoreStore) ArrayAppend(ctx context.Context, userID string, field string, values ...any) error {
	_, err := s.doc(userID).Update(ctx, []firestore.Update{
		{Path: field, Value: firestore.ArrayUnion(values...)},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return ErrNotFound
		}
		return fmt.Errorf("append %s: %w", field, err)
	}
	return nil
}

// AtomicIncrement runs a transaction so the returned value is exactly the
// one this call's increment produced, no matter how concurrent awards
// interleave.
func (s *FirestoreStore) AtomicIncrement(ctx context.Context, userID string, field string, amount int) (int, error) {
	ref := s.doc(userID)

	var newValue int
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return ErrNotFound
			}
			return err
		}

		current := 0
		if raw, err := snap.DataAt(field); err == nil {
			switch v := raw.(type) {
			case int64:
				current = int(v)
			case float64:
				current = int(v)
			}
		}

		newValue = current + amount
		return tx.Update(ref, []firestore.Update{{Path: field, Value: newValue}})
	})
	if err != nil {
		return 0, fmt.Errorf("increment %s: %w", field, err)
	}
	return newValue, nil
}

func (s *FirestoreStore) Close() error {
	return s.client.Close()
}
