package channel

// helpText is returned for the /help command on every channel.
const helpText = `Commands:

/help               Show this help message
/quit, /exit        End the session (terminal only)

Just talk naturally. The agents route your message themselves:
ask for a priority call, report a customer issue, request a day
plan, or ask what patterns the backlog is showing. Everything you
record is kept in the shared backlog and surfaced in later plans.`
