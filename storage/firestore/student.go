package firestorerepos

import (
	"context"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/pkg/errors"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/trezcool/sapp/core/user"
)

type studentDoc struct {
	UID        string    `firestore:"uid"`
	Name       string    `firestore:"name"`
	Email      string    `firestore:"email"`
	RollNumber string    `firestore:"rollNumber,omitempty"`
	Grade      string    `firestore:"grade,omitempty"`
	Status     string    `firestore:"status"`
	SchoolID   string    `firestore:"schoolId,omitempty"`
	CreatedAt  time.Time `firestore:"createdAt"`
}

type studentRepository struct {
	col *firestore.CollectionRef
}

var _ user.StudentRepository = (*studentRepository)(nil)

func NewStudentRepository(client *firestore.Client) user.StudentRepository {
	return &studentRepository{col: client.Collection(StudentsCollection)}
}

func (repo *studentRepository) PutStudent(ctx context.Context, s user.Student) error {
	doc := studentDoc{
		UID:        s.UID,
		Name:       s.Name,
		Email:      s.Email,
		RollNumber: s.RollNumber,
		Grade:      s.Grade,
		Status:     string(s.Status),
		SchoolID:   s.SchoolID,
		CreatedAt:  s.CreatedAt.UTC(),
	}
	if _, err := repo.col.Doc(s.UID).Set(ctx, doc); err != nil {
		return errors.Wrap(ClassifyError(err), "writing student")
	}
	return nil
}

func (repo *studentRepository) DeleteStudent(ctx context.Context, uid string) error {
	if _, err := repo.col.Doc(uid).Delete(ctx); err != nil {
		return errors.Wrap(ClassifyError(err), "deleting student")
	}
	return nil
}

func (repo *studentRepository) ScanStudents(ctx context.Context, filter user.Filter) ([]user.Student, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	if filter.Field == user.FieldRole {
		return nil, errors.Wrap(user.ErrInvalidFilter, "students have no role field")
	}
	snaps, err := query(repo.col, filter).Documents(ctx).GetAll()
	if err != nil {
		return nil, errors.Wrap(ClassifyError(err), "querying students")
	}

	students := make([]user.Student, 0, len(snaps))
	for _, snap := range snaps {
		var d studentDoc
		if err := snap.DataTo(&d); err != nil {
			return nil, errors.Wrapf(err, "decoding student %s", snap.Ref.ID)
		}
		if d.UID == "" {
			d.UID = snap.Ref.ID
		}
		students = append(students, user.Student{
			UID:        d.UID,
			Name:       d.Name,
			Email:      d.Email,
			RollNumber: d.RollNumber,
			Grade:      d.Grade,
			Status:     user.Status(d.Status),
			SchoolID:   d.SchoolID,
			CreatedAt:  d.CreatedAt.UTC(),
		})
	}
	sort.SliceStable(students, func(i, j int) bool { return students[i].CreatedAt.Before(students[j].CreatedAt) })
	return students, nil
}

func (repo *studentRepository) SetStudentStatus(ctx context.Context, uid string, st user.Status) error {
	_, err := repo.col.Doc(uid).Update(ctx, []firestore.Update{{Path: "status", Value: string(st)}})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return user.ErrNotFound
		}
		return errors.Wrap(ClassifyError(err), "updating student status")
	}
	return nil
}
