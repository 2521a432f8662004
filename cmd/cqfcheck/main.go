// Command cqfcheck exercises a Counting Quotient Filter with a synthetic
// insert/query/delete workload and reports false-positive rate and timing
// stats, the way the teacher's check/main.go drove a cascade filter.
package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"
	"github.com/zeebo/errs"
	"github.com/zeebo/mon"
	"github.com/zeebo/mon/monhandler"
	"github.com/zeebo/pcg"

	"github.com/cqflib/cqf"
)

var (
	keyBits    = pflag.Uint64("key_bits", 24, "hashed key width in bits")
	valueBits  = pflag.Uint64("value_bits", 4, "value tag width in bits")
	nslots     = pflag.Uint64("nslots", 1<<16, "initial slot count (power of two)")
	nkeys      = pflag.Int("nkeys", 200000, "number of distinct keys to insert")
	removeFrac = pflag.Float64("remove_frac", 0.1, "fraction of inserted keys to remove afterward")
	autoResize = pflag.Bool("auto_resize", true, "grow the filter in place instead of erroring on no_space")
	serve      = pflag.Bool("serve", false, "serve mon timing stats over http :8080")

	rng pcg.T
)

func stats() {
	defer fmt.Println()
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer tw.Flush()
	mon.Times(func(name string, state *mon.State) bool {
		sum, avg := state.Average()
		fmt.Fprintf(tw, "%s\t%v\t%v\t%v\n", name, state.Total(), time.Duration(sum), time.Duration(avg))
		return true
	})
}

func main() {
	pflag.Parse()

	defer stats()
	if *serve {
		go http.ListenAndServe(":8080", monhandler.Handler{})
	}

	if err := run(); err != nil {
		log.Fatalf("%+v", err)
	}
}

func run() error {
	f, err := cqf.Malloc(cqf.Options{
		NSlots:     *nslots,
		KeyBits:    *keyBits,
		ValueBits:  *valueBits,
		HashMode:   cqf.HashDefault,
		LockMode:   cqf.LocksForbidden,
		AutoResize: *autoResize,
		Seed:       uint32(rng.Uint32()),
	})
	if err != nil {
		return errs.Wrap(err)
	}
	defer f.Destroy()

	keys := make([]uint64, *nkeys)
	for i := range keys {
		keys[i] = rng.Uint64()
		if err := f.Insert(keys[i], uint64(rng.Uint32n(1<<uint(*valueBits))&0xf), 1, false); err != nil {
			return errs.Wrap(err)
		}
	}

	fmt.Printf("inserted %d keys: nslots=%d xnslots=%d load=%.4f\n",
		*nkeys, f.NSlots(), f.XNSlots(), f.LoadFactor())

	missing := 0
	for _, k := range keys {
		if _, found := f.Query(k); !found {
			missing++
		}
	}
	if missing > 0 {
		return errs.New("false negative: %d/%d inserted keys not found", missing, len(keys))
	}

	toRemove := int(float64(len(keys)) * *removeFrac)
	for _, k := range keys[:toRemove] {
		if value, found := f.Query(k); found {
			if err := f.DeleteKeyValue(k, value, false); err != nil {
				return errs.Wrap(err)
			}
		}
	}
	fmt.Printf("removed %d keys: nelts=%d ndistinct=%d\n", toRemove, f.NElts(), f.NDistinctElts())

	trials := 100000
	falsePositives := 0
	for i := 0; i < trials; i++ {
		if _, found := f.Query(rng.Uint64()); found {
			falsePositives++
		}
	}
	fmt.Printf("false positive rate: %d/%d == %0.4f%%\n",
		falsePositives, trials, 100*float64(falsePositives)/float64(trials))

	return nil
}
