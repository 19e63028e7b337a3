package main

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/skosovsky/promptchain"
	"github.com/skosovsky/promptchain/chain"
	"github.com/skosovsky/promptchain/outputparser"
)

// turnFunc answers one user input. A returned error is shown and the loop continues.
type turnFunc func(ctx context.Context, input string) (string, error)

// converse reads one input per prompt until quit, EOF or Ctrl-C. Blank lines are
// skipped and failed turns are reported without ending the session.
func converse(ctx context.Context, a *app, label, quit string, turn turnFunc) error {
	for {
		line, err := a.readLine(label)
		if isQuit(err) {
			a.out.Line("")
			return nil
		}
		if err != nil {
			return err
		}
		input := strings.TrimSpace(line)
		if strings.EqualFold(input, quit) {
			return nil
		}
		if input == "" {
			a.out.Line("Please type something to continue.")
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		reply, err := turn(ctx, input)
		if err != nil {
			a.out.Error(err)
			a.logger.Warn("turn failed", "error", err)
			continue
		}
		a.out.Message(promptchain.ChatMessage{Role: promptchain.RoleAssistant, Content: reply})
	}
}

func newChatCmd(get appGetter) *cobra.Command {
	var stream bool
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to an assistant that remembers the conversation",
		Long: `Start an interactive chat. Every turn is rendered with the "conversational"
prompt, whose chat_history placeholder receives all previous turns of the session.
Type "salir" or send EOF to leave.`,
		Args: cobra.NoArgs,
		RunE: get.run(func(cmd *cobra.Command, a *app, _ []string) error {
			ctx := cmd.Context()
			tpl, err := a.template(ctx, "conversational")
			if err != nil {
				return err
			}
			a.out.Heading("Hola! Soy Alex, tu asistente personal con memoria. Escribe 'salir' para terminar.")
			history := promptchain.NewHistory()
			model := a.modelStage(tpl)
			pipeline := chain.Pipe3(tpl, model, outputparser.String()).With(a.chainOptions(ctx)...)

			return converse(ctx, a, "Tú", "salir", func(ctx context.Context, input string) (string, error) {
				vals := promptchain.Values{"chat_history": history, "input": input}
				var reply string
				if stream {
					var b strings.Builder
					for chunk, err := range chain.Stream(ctx, tpl, model, outputparser.String(), vals) {
						if err != nil {
							return "", err
						}
						b.WriteString(chunk)
					}
					reply = b.String()
				} else {
					var err error
					if reply, err = pipeline.Invoke(ctx, vals); err != nil {
						return "", err
					}
				}
				reply = strings.TrimSpace(reply)
				history.AddTurn(input, reply)
				return reply, nil
			})
		}),
	}
	cmd.Flags().BoolVar(&stream, "stream", false, "stream each reply through the string parser")
	return cmd
}

const defaultCustomer = "Juan Pérez"

var (
	supportProducts = []string{"Laptop", "Smartphone", "Router", "Impresora"}
	supportPlans    = []string{"Básico", "Premium", "Enterprise"}
)

func newSupportCmd(get appGetter) *cobra.Command {
	var customer, product, plan, tickets string
	cmd := &cobra.Command{
		Use:   "support",
		Short: "Simulate a technical support agent with customer context",
		Long: `Start an interactive support session. The "support" prompt mixes system, assistant
and human messages; customer details are bound once as partial variables and the
conversation so far fills the conversation_history placeholder.
Type "finalizar" or send EOF to leave.`,
		Args: cobra.NoArgs,
		RunE: get.run(func(cmd *cobra.Command, a *app, _ []string) error {
			ctx := cmd.Context()
			if err := supportChoices(cmd, a, &customer, &product, &plan); err != nil {
				return err
			}
			if !slices.Contains(supportProducts, product) {
				return fmt.Errorf("unknown product %q (want one of %s)", product, strings.Join(supportProducts, ", "))
			}
			if !slices.Contains(supportPlans, plan) {
				return fmt.Errorf("unknown plan %q (want one of %s)", plan, strings.Join(supportPlans, ", "))
			}
			tpl, err := a.template(ctx, "support")
			if err != nil {
				return err
			}
			bound, err := tpl.Partial(promptchain.Values{
				"customer_name":  customer,
				"product_type":   product,
				"plan_type":      plan,
				"ticket_history": tickets,
			})
			if err != nil {
				return err
			}
			pipeline := chain.Pipe3(bound, a.modelStage(tpl), outputparser.String()).With(a.chainOptions(ctx)...)

			a.out.Heading("Sistema de Soporte Técnico TechCorp")
			a.out.Detail("Cliente", customer)
			a.out.Detail("Producto", product)
			a.out.Detail("Plan", plan)
			history := promptchain.NewHistory()
			return converse(ctx, a, customer, "finalizar", func(ctx context.Context, input string) (string, error) {
				reply, err := pipeline.Invoke(ctx, promptchain.Values{
					"conversation_history": history,
					"current_issue":        input,
				})
				if err != nil {
					return "", err
				}
				reply = strings.TrimSpace(reply)
				history.AddTurn(input, reply)
				return reply, nil
			})
		}),
	}
	cmd.Flags().StringVar(&customer, "customer", defaultCustomer, "customer name (asked for when unset)")
	cmd.Flags().StringVar(&product, "product", supportProducts[0], "product, selected interactively when unset: "+strings.Join(supportProducts, ", "))
	cmd.Flags().StringVar(&plan, "plan", supportPlans[0], "plan, selected interactively when unset: "+strings.Join(supportPlans, ", "))
	cmd.Flags().StringVar(&tickets, "ticket-history", "2 tickets resueltos en los últimos 6 meses (conexión wifi, actualización software)", "previous tickets summary")
	return cmd
}

// supportChoices fills the customer details not given as flags from interactive prompts.
func supportChoices(cmd *cobra.Command, a *app, customer, product, plan *string) error {
	var err error
	if !cmd.Flags().Changed("customer") {
		if *customer, err = a.ask("Nombre del cliente", *customer); err != nil {
			return err
		}
		if *customer = strings.TrimSpace(*customer); *customer == "" {
			*customer = defaultCustomer
		}
	}
	if !cmd.Flags().Changed("product") {
		if *product, err = a.choose("Producto", supportProducts, *product); err != nil {
			return err
		}
	}
	if !cmd.Flags().Changed("plan") {
		if *plan, err = a.choose("Plan", supportPlans, *plan); err != nil {
			return err
		}
	}
	return nil
}
