package keyword

import "strings"

// stopWords holds terms that never make useful keywords: articles, pronouns,
// auxiliary and modal verbs, common action verbs, fillers, generic nouns and
// contractions (with the apostrophe already stripped by tokenization).
var stopWords = buildSet(`
a about above across actually after afterwards again against ago ahead all almost alone along already
also although always am among amongst amount an and another any anybody anyhow anyone anything anyway
anyways anywhere are area areas aren arent around as aside ask asked asking asks at away

back be became because become becomes becoming been before beforehand began begin beginning behind
being believe below beside besides best better between beyond big both bring brings brought but by

call called came can cannot cant case cases certain certainly change changed clear clearly come comes
coming could couldn couldnt course currently

day days definitely describe described despite did didn didnt different do does doesn doesnt doing
don done dont down during

each early easy either else elsewhere end enough entire especially etc even ever every everybody
everyone everything everywhere exactly except

fact fairly far feel feels felt few find finds first five for former formerly forth found four from
front full further furthermore

gave general generally get gets getting give given gives giving go goes going gone good got gotten
great

had hadn hadnt happen happened happens hardly has hasn hasnt have haven havent having he hed hell
hello hence her here hereafter hereby herein hers herself hes hey hi high him himself his how however
huge

i id ie if ill im important in indeed instead interest interested into is isn isnt it itd itll its
itself ive

just

keep keeps kept kind kinda knew know known knows

large last lately later latter least less let lets like liked likely likes little long look looked
looking looks lot lots

made main mainly make makes making many may maybe me mean means meant meanwhile might mine more
moreover most mostly much must my myself

name namely near nearly need needed needing needs neither never nevertheless new next nice nine no
nobody non none nor not nothing now nowhere number

of off often oh ok okay old on once one ones only onto or other others otherwise ought our ours
ourselves out over overall own

part particular particularly people per perhaps place please plus point points possible possibly
pretty probably provide provided provides put puts

quite

rather really reason regarding regards right

said same saw say saying says second see seeing seem seemed seeming seems seen self sent serious
seriously set seven several shall she shed shell shes should shouldn shouldnt show showed shown shows
side simply since six small so some somebody somehow someone something sometime sometimes somewhat
somewhere soon sorry start started starting starts still stuff such sure

take taken takes taking tell tells than thank thanks thanx that thats the their theirs them
themselves then thence there thereafter thereby therefore therein theres these they theyd theyll
theyre theyve thing things think thinking thinks third this thorough thoroughly those though thought
thoughts three through throughout thru thus to today together told tomorrow too took toward towards
tried tries truly try trying turn turned two

under unless unlike unlikely until unto up upon us use used useful uses using usually

various very via

want wanted wanting wants was wasn wasnt way ways we wed well went were weren werent weve what
whatever whats when whence whenever where whereafter whereas whereby wherein wheres whereupon wherever
whether which while whither who whod whoever whole whom whose why will willing wish with within
without won wonder wont work worked working works would wouldn wouldnt

yeah year years yes yesterday yet you youd youll your youre yours yourself yourselves youve

able absolutely according add added adding adds agree allow allows apparently appear appreciate
appropriate available aware awesome basically bit cool couple create created creates creating
decide decided does enjoy everyday example examples exist exists explain explained fine follow
followed following follows forward happy help helped helpful helping helps hope idea ideas including
information issue issues item items know let's level levels likewise literally matter matters mention
mentioned minute minutes moment month months needful note noted obviously okay others perfect
pretty problem problems question questions quick quickly ready recent recently remember response
result results share shared simple situation sort sorts specific stay step steps sound sounds
suggest suggested super talk thing tonight topic topics totally understand understood update
updated version week weeks whatever wonderful word words write wrote yours
`)

func buildSet(words string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(words) {
		set[w] = struct{}{}
	}
	return set
}

// IsStopWord reports whether term is in the stop-word set.
func IsStopWord(term string) bool {
	_, ok := stopWords[term]
	return ok
}
