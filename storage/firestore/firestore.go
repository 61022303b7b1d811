// Package firestorerepos stores profiles, student records and schools in Cloud Firestore.
package firestorerepos

import (
	"context"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/pkg/errors"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/trezcool/sapp/core"
	"github.com/trezcool/sapp/core/user"
)

// Collections
const (
	UsersCollection    = "users"
	StudentsCollection = "students"
	SchoolsCollection  = "schools"
)

// document field paths of the filterable profile fields
var fieldPaths = map[string]string{
	user.FieldRole:     "role",
	user.FieldStatus:   "status",
	user.FieldSchoolID: "schoolId",
	user.FieldEmail:    "email",
}

// ClassifyError turns deployment faults into core.KindConfigurationFault errors. Other errors are returned as is.
func ClassifyError(err error) error {
	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unauthenticated:
		return core.NewError(core.KindConfigurationFault, "firestore misconfigured: the service account lacks access", err)
	case codes.FailedPrecondition:
		return core.NewError(core.KindConfigurationFault, "firestore misconfigured: a required index or database is missing", err)
	}
	return err
}

func query(col *firestore.CollectionRef, filter user.Filter) firestore.Query {
	q := col.Query
	if filter.Field != "" {
		q = q.Where(fieldPaths[filter.Field], "==", filter.Value)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	return q
}

type profileDoc struct {
	UID           string    `firestore:"uid"`
	Email         string    `firestore:"email"`
	Name          string    `firestore:"name"`
	Role          string    `firestore:"role"`
	Status        string    `firestore:"status"`
	SchoolID      string    `firestore:"schoolId,omitempty"`
	Subject       string    `firestore:"subject,omitempty"`
	RollNumber    string    `firestore:"rollNumber,omitempty"`
	IsSystemAdmin bool      `firestore:"isSystemAdmin"`
	CreatedAt     time.Time `firestore:"createdAt"`
	UpdatedAt     time.Time `firestore:"updatedAt"`
}

func newProfileDoc(p user.Profile) profileDoc {
	return profileDoc{
		UID:           p.UID,
		Email:         p.Email,
		Name:          p.Name,
		Role:          string(p.Role),
		Status:        string(p.Status),
		SchoolID:      p.SchoolID,
		Subject:       p.Subject,
		RollNumber:    p.RollNumber,
		IsSystemAdmin: p.IsSystemAdmin,
		CreatedAt:     p.CreatedAt.UTC(),
		UpdatedAt:     p.UpdatedAt.UTC(),
	}
}

func (d profileDoc) profile() user.Profile {
	return user.Profile{
		UID:           d.UID,
		Email:         d.Email,
		Name:          d.Name,
		Role:          user.Role(d.Role),
		Status:        user.Status(d.Status),
		SchoolID:      d.SchoolID,
		Subject:       d.Subject,
		RollNumber:    d.RollNumber,
		IsSystemAdmin: d.IsSystemAdmin,
		CreatedAt:     d.CreatedAt.UTC(),
		UpdatedAt:     d.UpdatedAt.UTC(),
	}
}

func decodeProfile(snap *firestore.DocumentSnapshot) (user.Profile, error) {
	var d profileDoc
	if err := snap.DataTo(&d); err != nil {
		return user.Profile{}, errors.Wrapf(err, "decoding profile %s", snap.Ref.ID)
	}
	if d.UID == "" {
		d.UID = snap.Ref.ID
	}
	return d.profile(), nil
}

type profileRepository struct {
	col *firestore.CollectionRef
}

var _ user.Repository = (*profileRepository)(nil)

func NewProfileRepository(client *firestore.Client) user.Repository {
	return &profileRepository{col: client.Collection(UsersCollection)}
}

func (repo *profileRepository) GetProfile(ctx context.Context, uid string) (user.Profile, error) {
	snap, err := repo.col.Doc(uid).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return user.Profile{}, user.ErrNotFound
		}
		return user.Profile{}, errors.Wrap(ClassifyError(err), "getting profile")
	}
	return decodeProfile(snap)
}

func (repo *profileRepository) InsertProfile(ctx context.Context, p user.Profile) (user.Profile, error) {
	if _, err := repo.col.Doc(p.UID).Create(ctx, newProfileDoc(p)); err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return user.Profile{}, user.ErrProfileExists
		}
		return user.Profile{}, errors.Wrap(ClassifyError(err), "creating profile")
	}
	return p, nil
}

func (repo *profileRepository) UpdateProfile(ctx context.Context, uid string, uu user.UpdateProfile) (user.Profile, error) {
	var updates []firestore.Update
	if uu.Name != nil {
		updates = append(updates, firestore.Update{Path: "name", Value: *uu.Name})
	}
	if uu.Status != nil {
		updates = append(updates, firestore.Update{Path: "status", Value: string(*uu.Status)})
	}
	if uu.SchoolID != nil {
		updates = append(updates, firestore.Update{Path: "schoolId", Value: *uu.SchoolID})
	}
	if uu.Subject != nil {
		updates = append(updates, firestore.Update{Path: "subject", Value: *uu.Subject})
	}
	if uu.RollNumber != nil {
		updates = append(updates, firestore.Update{Path: "rollNumber", Value: *uu.RollNumber})
	}
	updates = append(updates, firestore.Update{Path: "updatedAt", Value: time.Now().UTC()})

	if _, err := repo.col.Doc(uid).Update(ctx, updates); err != nil {
		if status.Code(err) == codes.NotFound {
			return user.Profile{}, user.ErrNotFound
		}
		return user.Profile{}, errors.Wrap(ClassifyError(err), "updating profile")
	}
	return repo.GetProfile(ctx, uid)
}

func (repo *profileRepository) DeleteProfile(ctx context.Context, uid string) error {
	if _, err := repo.col.Doc(uid).Delete(ctx); err != nil {
		return errors.Wrap(ClassifyError(err), "deleting profile")
	}
	return nil
}

// ScanProfiles sorts in memory: ordering on another field than the filter's needs a composite index.
func (repo *profileRepository) ScanProfiles(ctx context.Context, filter user.Filter) ([]user.Profile, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	snaps, err := query(repo.col, filter).Documents(ctx).GetAll()
	if err != nil {
		return nil, errors.Wrap(ClassifyError(err), "querying profiles")
	}

	profiles := make([]user.Profile, 0, len(snaps))
	for _, snap := range snaps {
		p, err := decodeProfile(snap)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	sort.SliceStable(profiles, func(i, j int) bool {
		if profiles[i].CreatedAt.Equal(profiles[j].CreatedAt) {
			return profiles[i].UID < profiles[j].UID
		}
		return profiles[i].CreatedAt.Before(profiles[j].CreatedAt)
	})
	return profiles, nil
}
