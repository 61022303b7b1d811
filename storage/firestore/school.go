package firestorerepos

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/pkg/errors"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/trezcool/sapp/core/user"
)

type schoolDoc struct {
	Name      string    `firestore:"name"`
	Address   string    `firestore:"address,omitempty"`
	Contact   string    `firestore:"contact,omitempty"`
	CreatedAt time.Time `firestore:"createdAt"`
}

func decodeSchool(snap *firestore.DocumentSnapshot) (user.School, error) {
	var d schoolDoc
	if err := snap.DataTo(&d); err != nil {
		return user.School{}, errors.Wrapf(err, "decoding school %s", snap.Ref.ID)
	}
	return user.School{
		ID:        snap.Ref.ID,
		Name:      d.Name,
		Address:   d.Address,
		Contact:   d.Contact,
		CreatedAt: d.CreatedAt.UTC(),
	}, nil
}

type schoolRepository struct {
	col *firestore.CollectionRef
}

var _ user.SchoolRepository = (*schoolRepository)(nil)

func NewSchoolRepository(client *firestore.Client) user.SchoolRepository {
	return &schoolRepository{col: client.Collection(SchoolsCollection)}
}

func (repo *schoolRepository) InsertSchool(ctx context.Context, s user.School) (user.School, error) {
	doc := schoolDoc{Name: s.Name, Address: s.Address, Contact: s.Contact, CreatedAt: s.CreatedAt.UTC()}
	if _, err := repo.col.Doc(s.ID).Create(ctx, doc); err != nil {
		return user.School{}, errors.Wrap(ClassifyError(err), "creating school")
	}
	return s, nil
}

func (repo *schoolRepository) GetSchool(ctx context.Context, id string) (user.School, error) {
	snap, err := repo.col.Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return user.School{}, user.ErrSchoolNotFound
		}
		return user.School{}, errors.Wrap(ClassifyError(err), "getting school")
	}
	return decodeSchool(snap)
}

func (repo *schoolRepository) DeleteSchool(ctx context.Context, id string) error {
	if _, err := repo.col.Doc(id).Delete(ctx); err != nil {
		return errors.Wrap(ClassifyError(err), "deleting school")
	}
	return nil
}

func (repo *schoolRepository) ListSchools(ctx context.Context) ([]user.School, error) {
	snaps, err := repo.col.OrderBy("createdAt", firestore.Asc).Documents(ctx).GetAll()
	if err != nil {
		return nil, errors.Wrap(ClassifyError(err), "listing schools")
	}
	schools := make([]user.School, 0, len(snaps))
	for _, snap := range snaps {
		s, err := decodeSchool(snap)
		if err != nil {
			return nil, err
		}
		schools = append(schools, s)
	}
	return schools, nil
}
