// Command marlin-compile compiles builder state into the command document
// that would be sent, without connecting to a database. It is a debugging
// aid for inspecting filters, pipelines and write statements.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/alecthomas/kong"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/marlindb/marlin"
	"github.com/marlindb/marlin/internal/driver"
	"github.com/marlindb/marlin/internal/util/must"
)

// cli struct represents all command-line commands, fields and flags.
//
//nolint:vet // for readability
var cli struct {
	Table string `arg:"" help:"Collection name."`

	Op string `default:"get" enum:"get,count,delete" help:"Terminal operation to compile."`

	Where   []string `short:"w" placeholder:"KEY=VALUE" help:"Conditions; the key may carry a trailing relational operator."`
	OrWhere []string `placeholder:"KEY=VALUE" help:"OR-joined conditions."`

	Select   []string `short:"s" help:"Projected fields."`
	Distinct bool     `help:"One result per distinct combination of the projected fields."`
	GroupBy  []string `help:"Group-by fields."`
	Count    string   `placeholder:"FIELD" help:"Count aggregation; * counts rows."`

	OrderBy []string `placeholder:"FIELD[:desc]" help:"Sort fields."`
	Limit   int64    `help:"Result cap."`
	Offset  int64    `help:"Result skip."`

	Pretty bool `default:"true" negatable:"" help:"Indent the output."`
}

func main() {
	kong.Parse(&cli)

	conn, err := marlin.NewConn(context.Background(), &marlin.NewConnParams{
		Database: "compile",
		Runner:   offlineRunner{},
	})
	if err != nil {
		log.Fatal(err)
	}

	b := conn.Table(cli.Table)

	for _, cond := range cli.Where {
		key, value, err := splitCondition(cond)
		if err != nil {
			log.Fatal(err)
		}

		b.Where(key, value)
	}

	for _, cond := range cli.OrWhere {
		key, value, err := splitCondition(cond)
		if err != nil {
			log.Fatal(err)
		}

		b.OrWhere(key, value)
	}

	if len(cli.Select) > 0 {
		b.Select(cli.Select...)
	}

	if cli.Distinct {
		b.Distinct()
	}

	if len(cli.GroupBy) > 0 {
		b.GroupBy(cli.GroupBy...)
	}

	if cli.Count != "" {
		b.SelectCount(cli.Count, "")
	}

	for _, field := range cli.OrderBy {
		name, dir, _ := strings.Cut(field, ":")
		b.OrderBy(name, strings.ToUpper(dir))
	}

	if cli.Limit > 0 {
		b.Limit(cli.Limit)
	}

	if cli.Offset > 0 {
		b.Offset(cli.Offset)
	}

	var cmd bson.D

	switch cli.Op {
	case "count":
		cmd, err = b.CountAllResultsCompiled()
	case "delete":
		cmd, err = b.DeleteCompiled()
	default:
		cmd, err = b.GetCompiled()
	}

	if err != nil {
		log.Fatal(err)
	}

	out := must.NotFail(bson.MarshalExtJSONIndent(cmd, true, false, "", indent()))
	fmt.Fprintln(os.Stdout, string(out))
}

// indent returns the indentation string for the selected output style.
func indent() string {
	if cli.Pretty {
		return "  "
	}

	return ""
}

// splitCondition parses one KEY=VALUE condition, converting the value to
// the narrowest matching scalar type.
func splitCondition(cond string) (string, any, error) {
	key, value, ok := strings.Cut(cond, "=")
	if !ok {
		return "", nil, fmt.Errorf("condition %q is not of the form KEY=VALUE", cond)
	}

	return strings.TrimSpace(key), parseScalar(value), nil
}

// parseScalar converts a textual value to int64, float64 or bool when it
// parses as one; anything else stays a string.
func parseScalar(s string) any {
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v
	}

	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v
	}

	if v, err := strconv.ParseBool(s); err == nil {
		return v
	}

	return s
}

// offlineRunner fails every command; compile-only use never dispatches one.
type offlineRunner struct{}

// RunCommand implements driver.Runner.
func (offlineRunner) RunCommand(context.Context, bson.D) (bson.D, error) {
	return nil, driver.NewUnsupportedError("offline compilation cannot execute commands")
}

// check interfaces
var (
	_ driver.Runner = offlineRunner{}
)
