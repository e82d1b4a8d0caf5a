// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"slices"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/xmidt-org/avrokafka"
)

func newBindingsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "bindings TOPIC...",
		Short: "Show the key and value schemas bound to topics",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.bindings(cmd.Context(), args, cmd.OutOrStdout())
		},
	}
}

func (a *app) bindings(ctx context.Context, topics []string, out io.Writer) error {
	resolver, err := a.resolver()
	if err != nil {
		return err
	}

	var bindings map[string]*avrokafka.TopicBinding
	err = a.retry(ctx, "registry", func(ctx context.Context) error {
		var err error
		bindings, err = resolver.ResolveTopicBindings(ctx, topics)
		return err
	})
	if err != nil {
		return err
	}

	return writeBindings(out, bindings)
}

func writeBindings(out io.Writer, bindings map[string]*avrokafka.TopicBinding) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TOPIC\tFIELD\tSUBJECT\tVERSION\tID\tNAME")

	topics := make([]string, 0, len(bindings))
	for topic := range bindings {
		topics = append(topics, topic)
	}
	slices.Sort(topics)

	for _, topic := range topics {
		b := bindings[topic]
		for _, row := range []struct {
			field  avrokafka.Field
			schema *avrokafka.Schema
		}{
			{avrokafka.FieldKey, b.Key},
			{avrokafka.FieldValue, b.Value},
		} {
			if row.schema == nil {
				fmt.Fprintf(tw, "%s\t%s\t-\t-\t-\t-\n", topic, row.field)
				continue
			}
			name := row.schema.FullName()
			if name == "" {
				name = string(row.schema.Avro().Type())
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n",
				topic, row.field, row.schema.Subject, row.schema.Version, row.schema.ID, name)
		}
	}

	return tw.Flush()
}
