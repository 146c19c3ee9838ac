package decision

// banProgram derives banned_by(R) for every ban rule R whose constraints all
// hold for the single car loaded into the store. An unconstrained attribute
// matches vacuously. Euro bounds are stored exclusive (max class + 1) and
// registration dates as YYYYMMDD numbers so plain < comparisons suffice.
const banProgram = `
Decl rule(R).
Decl rule_fuel(R, F).
Decl rule_euro_below(R, N).
Decl rule_category(R, C).
Decl rule_registered_before(R, D).
Decl rule_non_zero_emission(R).
Decl car_fuel(F).
Decl car_euro(N).
Decl car_category(C).
Decl car_registered(D).

zero_emission(/electric).
zero_emission(/hydrogen).

constrains_fuel(R) :- rule_fuel(R, _).
constrains_euro(R) :- rule_euro_below(R, _).
constrains_category(R) :- rule_category(R, _).
constrains_registration(R) :- rule_registered_before(R, _).

fuel_match(R) :- rule(R), !constrains_fuel(R).
fuel_match(R) :- rule_fuel(R, F), car_fuel(F).

euro_match(R) :- rule(R), !constrains_euro(R).
euro_match(R) :- rule_euro_below(R, Bound), car_euro(E), E < Bound.

category_match(R) :- rule(R), !constrains_category(R).
category_match(R) :- rule_category(R, C), car_category(C).

registration_match(R) :- rule(R), !constrains_registration(R).
registration_match(R) :- rule_registered_before(R, Cutoff), car_registered(D), D < Cutoff.

emission_match(R) :- rule(R), !rule_non_zero_emission(R).
emission_match(R) :- rule_non_zero_emission(R), car_fuel(F), !zero_emission(F).

banned_by(R) :- fuel_match(R), euro_match(R), category_match(R), registration_match(R), emission_match(R).
`
