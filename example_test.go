package ncpack_test

import (
	"context"
	"fmt"
	"log"
	"math"

	"github.com/hupe1980/ncpack"
	"github.com/hupe1980/ncpack/blobstore"
	"github.com/hupe1980/ncpack/memprobe"
	"github.com/hupe1980/ncpack/quantization"
	"github.com/hupe1980/ncpack/reduce"
	"github.com/hupe1980/ncpack/source"
	"github.com/hupe1980/ncpack/testutil"
)

// Example_computeParameters packs the bounds of a range into an 8-bit container.
func Example_computeParameters() {
	p, err := quantization.ComputeParameters(-100, 100, quantization.Bits8)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println(quantization.Pack(-100, p.Scale, p.Offset), quantization.Pack(100, p.Scale, p.Offset))
	// Output: -128 127
}

// Example_slabPlan shows how a 50 MiB budget splits 256 time steps of 8 MiB each.
func Example_slabPlan() {
	k, err := reduce.ComputeSlabSize(50<<20, 1024*1024*8)
	if err != nil {
		log.Fatal(err)
	}
	plan := reduce.Plan(256, k)

	fmt.Printf("slab size %d, %d slabs, last has %d rows\n", k, len(plan), plan[len(plan)-1].Len())
	// Output: slab size 6, 43 slabs, last has 4 rows
}

// ExampleEngine_Reduce averages every time step of a field.
func ExampleEngine_Reduce() {
	eng, err := ncpack.New(
		ncpack.WithMemoryBudget(64<<10),
		ncpack.WithProbe(memprobe.Nop{}),
	)
	if err != nil {
		log.Fatal(err)
	}

	src, err := source.NewDense(testutil.SyntheticField(100, 32, 32))
	if err != nil {
		log.Fatal(err)
	}

	means, err := eng.Reduce(context.Background(), src, reduce.Mean)
	if err != nil {
		log.Fatal(err)
	}

	k, _ := eng.SlabSize(src)
	fmt.Println(len(means), "rows in slabs of", k)
	// Output: 100 rows in slabs of 8
}

// ExampleEngine_Pack packs a field into an in-memory archive and reads it back.
func ExampleEngine_Pack() {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()

	eng, err := ncpack.New(
		ncpack.WithMemoryBudget(1<<20),
		ncpack.WithProbe(memprobe.Nop{}),
		ncpack.WithBits(quantization.Bits16),
	)
	if err != nil {
		log.Fatal(err)
	}

	field := testutil.SyntheticField(48, 16, 16)
	src, err := source.NewDense(field)
	if err != nil {
		log.Fatal(err)
	}

	report, err := eng.Pack(ctx, src, store, "fields/tas.ncpk")
	if err != nil {
		log.Fatal(err)
	}

	arr, err := eng.Unpack(ctx, store, "fields/tas.ncpk")
	if err != nil {
		log.Fatal(err)
	}

	var worst float64
	for i, v := range arr.Elements {
		worst = math.Max(worst, math.Abs(v-field.Elements[i]))
	}

	fmt.Println(report.Values, report.Saturated, report.Encode.Slabs)
	fmt.Println("within one step:", worst < report.Params.Scale)
	// Output:
	// 12288 0 1
	// within one step: true
}
