package database

import (
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/sapp/core"
)

// PostgreSQL error codes that point at the deployment rather than the request.
var configFaults = map[pq.ErrorCode]string{
	"42P01": "a table is missing, run the migrations",
	"42703": "a column is missing, run the migrations",
	"42501": "the database user lacks the required privileges",
	"3D000": "the database does not exist",
	"28P01": "the database credentials are invalid",
	"28000": "the database user is not authorized",
}

const uniqueViolation pq.ErrorCode = "23505"

// ClassifyError turns deployment faults into core.KindConfigurationFault errors. Other errors are returned as is.
func ClassifyError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if hint, ok := configFaults[pqErr.Code]; ok {
			return core.NewError(core.KindConfigurationFault, "database misconfigured: "+hint, err)
		}
	}
	return err
}

func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
