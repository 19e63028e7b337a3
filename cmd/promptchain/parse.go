package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/skosovsky/promptchain"
	"github.com/skosovsky/promptchain/chain"
	"github.com/skosovsky/promptchain/outputparser"
)

// Parser demos selectable as the parse argument.
const (
	parseString = "string"
	parseList   = "list"
	parseNames  = "names"
	parseRich   = "rich"
	parseFixing = "fixing"
)

var parseKinds = []string{parseString, parseList, parseNames, parseRich, parseFixing}

// misformatted is a completion with single-quoted keys that the fixing demo repairs.
const misformatted = "{'name': 'Tom Hanks', 'film_names': ['Forrest Gump']}"

const (
	namesMessage = "Hola mi nombre es Juan Cruz y tengo 34 anios"
	richMessage  = "¡Hola! Mi nombre es María Elena Rodríguez, tengo 28 años y soy desarrolladora frontend senior en TechCorp Argentina. " +
		"Llevo 5 años trabajando en el sector tecnológico, principalmente con React, JavaScript y diseño UX/UI. " +
		"Mi email corporativo es maria.rodriguez@techcorp.com y mi celular es +54 11 4567-8901. " +
		"Vivo en Buenos Aires pero trabajo remoto para clientes internacionales. " +
		"Domino español nativo, inglés avanzado y estoy aprendiendo portugués para expandir al mercado brasileño. " +
		"Me apasionan las nuevas tecnologías, especialmente IA, blockchain y desarrollo mobile. " +
		"Tengo habilidades en Node.js, TypeScript, Figma y metodologías ágiles. " +
		"Generalmente estoy disponible por las tardes y fines de semana para proyectos freelance. " +
		"¿Podrían contactarme urgentemente para discutir una oportunidad laboral?"
)

// actor is the record the fixing demo expects.
type actor struct {
	Name      string   `json:"name" jsonschema:"description=name of an actor"`
	FilmNames []string `json:"film_names" jsonschema:"description=list of names of films they starred in"`
}

func newParseCmd(get appGetter) *cobra.Command {
	var (
		vars         map[string]string
		instructions bool
	)
	cmd := &cobra.Command{
		Use:   "parse <" + strings.Join(parseKinds, "|") + ">",
		Short: "Run an output parser demo",
		Long: `Run one of the output parser demos:

  string  first president of a country as plain text      (--var country=...)
  list    ingredients of a dish as a comma separated list (--var food=...)
  names   name, surname and age from a message            (--var message=...)
  rich    a nested profile with enums, bounds and defaults (--var message=...)
  fixing  repair a malformed completion with one extra model call`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: parseKinds,
		RunE: get.run(func(cmd *cobra.Command, a *app, args []string) error {
			out, err := runParse(cmd.Context(), a, args[0], toValues(vars), instructions)
			if err != nil {
				return err
			}
			return printResult(a, out)
		}),
	}
	cmd.Flags().StringToStringVar(&vars, "var", nil, "template variable as key=value (repeatable)")
	cmd.Flags().BoolVar(&instructions, "show-instructions", false, "print the parser format instructions first")
	return cmd
}

func toValues(m map[string]string) promptchain.Values {
	out := make(promptchain.Values, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func withDefault(vals promptchain.Values, key, def string) promptchain.Values {
	out := vals.Clone()
	if _, ok := out[key]; !ok {
		out[key] = def
	}
	return out
}

func runParse(ctx context.Context, a *app, kind string, vals promptchain.Values, instructions bool) (any, error) {
	switch kind {
	case parseString:
		tpl, err := a.template(ctx, "first_president")
		if err != nil {
			return nil, err
		}
		return chain.Pipe3(tpl, a.modelStage(tpl), outputparser.String()).
			With(a.chainOptions(ctx)...).
			Invoke(ctx, withDefault(vals, "country", "colombia"))
	case parseList:
		tpl, err := a.template(ctx, "ingredients")
		if err != nil {
			return nil, err
		}
		return chain.Pipe3(tpl, a.modelStage(tpl), outputparser.CommaSeparatedList()).
			With(a.chainOptions(ctx)...).
			Invoke(ctx, withDefault(vals, "food", "milanesa de pollo argentina"))
	case parseNames:
		schema, err := outputparser.FromNamesAndDescriptions(map[string]string{
			"nombre":   "el primer nombre de la persona",
			"apellido": "el apellido de la persona",
			"edad":     "la edad de la persona",
		})
		if err != nil {
			return nil, err
		}
		return runStructured(ctx, a, "analyze_message", outputparser.Structured(schema), withDefault(vals, "message", namesMessage), instructions)
	case parseRich:
		schema, err := profileSchema()
		if err != nil {
			return nil, err
		}
		return runStructured(ctx, a, "analyze_profile", outputparser.Structured(schema), withDefault(vals, "message", richMessage), instructions)
	case parseFixing:
		typed, err := outputparser.Typed[actor]()
		if err != nil {
			return nil, err
		}
		if instructions {
			a.out.Line(typed.FormatInstructions())
		}
		fixing := outputparser.Fixing(typed, outputparser.ModelCorrector(a.model, a.callOpts...),
			outputparser.WithLogger(a.logger))
		return fixing.Parse(ctx, misformatted)
	default:
		return nil, fmt.Errorf("unknown parser %q (want one of %s)", kind, strings.Join(parseKinds, ", "))
	}
}

// runStructured binds the parser's format instructions as a partial and runs
// prompt | model | parser.
func runStructured(ctx context.Context, a *app, name string, parser *outputparser.StructuredParser, vals promptchain.Values, instructions bool) (map[string]any, error) {
	tpl, err := a.template(ctx, name)
	if err != nil {
		return nil, err
	}
	partial, err := tpl.Partial(promptchain.Values{"format_instructions": parser.FormatInstructions()})
	if err != nil {
		return nil, err
	}
	if instructions {
		a.out.Line(parser.FormatInstructions())
	}
	return chain.Pipe3(partial, a.modelStage(tpl), parser).
		With(a.chainOptions(ctx)...).
		Invoke(ctx, vals)
}

// profileSchema is the nested profile record of the rich demo.
func profileSchema() (*outputparser.Schema, error) {
	str := outputparser.StringField
	return outputparser.NewSchema(
		str("nombre").MinLen(1).Required(),
		str("apellido").MinLen(1).Required(),
		outputparser.IntegerField("edad").Range(0, 120).Required(),
		outputparser.ObjectField("contacto",
			str("email").Format("email"),
			str("telefono").Pattern(`^\+?[\d\s\-\(\)]{7,15}$`),
			str("pais").MinLen(2),
			str("ciudad"),
		),
		outputparser.ObjectField("preferencias",
			outputparser.ArrayField("idiomas", str("").Enum("español", "inglés", "portugués", "francés", "alemán", "italiano", "otro")).Default([]any{}),
			outputparser.ArrayField("intereses", str("")).MaxItems(10).Default([]any{}),
			str("nivel_experiencia").Enum("principiante", "intermedio", "avanzado", "experto"),
			str("disponibilidad").Enum("mañana", "tarde", "noche", "fin_de_semana", "flexible"),
		),
		outputparser.ObjectField("perfil_profesional",
			str("profesion"),
			str("empresa"),
			outputparser.IntegerField("años_experiencia").Range(0, 60),
			str("sector").Enum("tecnología", "educación", "salud", "finanzas", "marketing",
				"ventas", "recursos_humanos", "ingeniería", "diseño", "otro"),
			outputparser.ArrayField("habilidades", str("")).MaxItems(15).Default([]any{}),
		),
		str("analisis_sentimiento").Enum("positivo", "neutral", "negativo"),
		outputparser.NumberField("confianza_extraccion").Range(0, 1),
		outputparser.ArrayField("campos_detectados", str("")).Default([]any{}),
		outputparser.ObjectField("contexto_mensaje",
			str("intencion").Enum("presentacion", "consulta", "queja", "solicitud", "otro"),
			str("urgencia").Enum("baja", "media", "alta"),
			outputparser.BooleanField("requiere_seguimiento").Default(false),
		),
	)
}

// printResult prints strings as-is, lists one item per line and anything else as indented JSON.
func printResult(a *app, out any) error {
	switch v := out.(type) {
	case string:
		a.out.Line(v)
	case []string:
		for _, item := range v {
			a.out.Line("- " + item)
		}
	default:
		return printJSON(a, v)
	}
	return nil
}

func printJSON(a *app, v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	a.out.Line(string(raw))
	return nil
}
