package repositories

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"preventanyl/models"
	"preventanyl/utils"
)

// FirestoreKitRepository reads and writes kits in a Firestore collection and
// watches it with realtime snapshot listeners.
type FirestoreKitRepository struct {
	client     *firestore.Client
	collection string
}

func NewFirestoreKitRepository(client *firestore.Client, collection string) *FirestoreKitRepository {
	if collection == "" {
		collection = "staticKits"
	}
	return &FirestoreKitRepository{client: client, collection: collection}
}

func (fr *FirestoreKitRepository) kits() *firestore.CollectionRef {
	return fr.client.Collection(fr.collection)
}

func (fr *FirestoreKitRepository) List(ctx context.Context) ([]models.Kit, error) {
	it := fr.kits().OrderBy("title", firestore.Asc).Documents(ctx)
	defer it.Stop()

	var docs []*firestore.DocumentSnapshot
	for {
		doc, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return decodeKitDocuments(docs), nil
}

func (fr *FirestoreKitRepository) Get(ctx context.Context, id string) (*models.Kit, error) {
	doc, err := fr.kits().Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, utils.NewKitNotFoundError()
		}
		return nil, err
	}
	return decodeKitDocument(doc)
}

func (fr *FirestoreKitRepository) Create(ctx context.Context, kit *models.Kit) error {
	ref := fr.kits().NewDoc()
	if kit.ID != "" {
		ref = fr.kits().Doc(kit.ID)
	}
	now := time.Now()
	kit.ID = ref.ID
	kit.CreatedAt = now
	kit.UpdatedAt = now

	_, err := ref.Create(ctx, kit)
	if status.Code(err) == codes.AlreadyExists {
		return utils.NewConflictError("Kit already exists")
	}
	return err
}

func (fr *FirestoreKitRepository) Update(ctx context.Context, kit *models.Kit) error {
	ref := fr.kits().Doc(kit.ID)
	if _, err := ref.Get(ctx); err != nil {
		if status.Code(err) == codes.NotFound {
			return utils.NewKitNotFoundError()
		}
		return err
	}

	kit.UpdatedAt = time.Now()
	_, err := ref.Set(ctx, kit)
	return err
}

func (fr *FirestoreKitRepository) Delete(ctx context.Context, id string) error {
	ref := fr.kits().Doc(id)
	_, err := ref.Delete(ctx, firestore.Exists)
	if status.Code(err) == codes.NotFound {
		return utils.NewKitNotFoundError()
	}
	return err
}

// Watch emits the whole collection for every snapshot until ctx is done.
func (fr *FirestoreKitRepository) Watch(ctx context.Context, emit func([]models.Kit)) error {
	it := fr.kits().Snapshots(ctx)
	defer it.Stop()

	for {
		snap, err := it.Next()
		if err != nil {
			if ctx.Err() != nil || status.Code(err) == codes.Canceled {
				return nil
			}
			return err
		}

		docs, err := snap.Documents.GetAll()
		if err != nil {
			return err
		}
		emit(decodeKitDocuments(docs))
	}
}

// kitSource is a stored kit document and the ID it is filed under.
type kitSource struct {
	id   string
	data interface{ DataTo(p interface{}) error }
}

// decodeKitDocuments skips documents that do not decode so one malformed
// kit cannot hide the rest of the collection.
func decodeKitDocuments(docs []*firestore.DocumentSnapshot) []models.Kit {
	sources := make([]kitSource, len(docs))
	for i, doc := range docs {
		sources[i] = kitSource{id: doc.Ref.ID, data: doc}
	}
	return decodeKits(sources)
}

func decodeKits(sources []kitSource) []models.Kit {
	kits := make([]models.Kit, 0, len(sources))
	for _, src := range sources {
		kit, err := decodeKit(src)
		if err != nil {
			logrus.WithField("kitId", src.id).Warnf("Skipping undecodable kit document: %v", err)
			continue
		}
		kits = append(kits, *kit)
	}
	return kits
}

func decodeKitDocument(doc *firestore.DocumentSnapshot) (*models.Kit, error) {
	return decodeKit(kitSource{id: doc.Ref.ID, data: doc})
}

func decodeKit(src kitSource) (*models.Kit, error) {
	var kit models.Kit
	if err := src.data.DataTo(&kit); err != nil {
		return nil, err
	}
	kit.ID = src.id
	return &kit, nil
}
