package executor

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/myfstd/gbatis/driver/drivertest"
	"github.com/myfstd/gbatis/mapping"
)

type vehicle struct {
	ID     int64  `db:"id"`
	Kind   string `db:"kind"`
	Wheels int64  `db:"wheels"`
	Cargo  int64  `db:"cargo"`
}

// the discriminator column routes each row to a case-specific result map
func TestDiscriminatorRouting(t *testing.T) {
	cfg := newCfg()
	cfg.RegisterType(vehicle{})

	carMap := &mapping.ResultMap{
		ID:   "t.carMap",
		Type: reflect.TypeOf(vehicle{}),
		Mappings: []*mapping.ResultMapping{
			{Property: "id", Column: "id", ID: true},
			{Property: "kind", Column: "kind"},
			{Property: "wheels", Column: "wheels"},
		},
	}
	carMap.Index()
	require.NoError(t, cfg.AddResultMap(carMap))

	truckMap := &mapping.ResultMap{
		ID:   "t.truckMap",
		Type: reflect.TypeOf(vehicle{}),
		Mappings: []*mapping.ResultMapping{
			{Property: "id", Column: "id", ID: true},
			{Property: "kind", Column: "kind"},
			{Property: "cargo", Column: "cargo"},
		},
	}
	truckMap.Index()
	require.NoError(t, cfg.AddResultMap(truckMap))

	base := &mapping.ResultMap{
		ID:   "t.vehicleMap",
		Type: reflect.TypeOf(vehicle{}),
		Mappings: []*mapping.ResultMapping{
			{Property: "id", Column: "id", ID: true},
		},
		Discriminator: &mapping.Discriminator{
			Column:  "kind",
			Handler: nil,
			Cases: map[string]string{
				"car":   "t.carMap",
				"truck": "t.truckMap",
			},
		},
	}
	base.Discriminator.Handler = cfg.TypeHandlers.Lookup(reflect.TypeOf(""), "")
	base.Index()

	conn := drivertest.NewConn().
		On("FROM vehicle", []string{"id", "kind", "wheels", "cargo"}, [][]any{
			{int64(1), "car", int64(4), nil},
			{int64(2), "truck", nil, int64(5000)},
		})
	exec := NewSimple(cfg, conn)
	ms := selectStatement(t, cfg, "t.vehicles", "SELECT * FROM vehicle", base)

	list, err := exec.Query(ms, nil, DefaultRowBounds())
	require.NoError(t, err)
	require.Len(t, list, 2)

	car := list[0].(*vehicle)
	assert.Equal(t, "car", car.Kind)
	assert.Equal(t, int64(4), car.Wheels)
	assert.Zero(t, car.Cargo)

	truck := list[1].(*vehicle)
	assert.Equal(t, "truck", truck.Kind)
	assert.Equal(t, int64(5000), truck.Cargo)
	assert.Zero(t, truck.Wheels)
}
